package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/status"
)

const defaultChunkSize = 32 * 1024

// Engine reads and writes single remote files. Every call opens its own
// session and closes it before returning.
type Engine struct {
	connector Connector
	logger    *zap.Logger
	chunkSize int
	now       func() time.Time
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithChunkSize sets the streamed read buffer size.
func WithChunkSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithClock replaces time.Now, for speed calculations in tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a transfer engine on top of connector.
func NewEngine(connector Connector, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		connector: connector,
		logger:    logger,
		chunkSize: defaultChunkSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Connector exposes the connector so other packages reuse the same transport.
func (e *Engine) Connector() Connector {
	return e.connector
}

// open connects and logs the connection phase. The caller owns the session.
func (e *Engine) open(ctx context.Context, ep Endpoint, op *operation) (Session, status.Result, bool) {
	op.info(fmt.Sprintf("connecting to %s", ep))
	sess, err := e.connector.Connect(ctx, ep, op)
	if err != nil {
		op.failure(fmt.Sprintf("connection failed: %v", err))
		return nil, status.Fail(status.KindConnectivity, err.Error()), false
	}
	op.success(fmt.Sprintf("connected to %s", ep))
	return sess, status.Result{}, true
}

func (e *Engine) closeSession(sess Session) {
	if err := sess.Close(); err != nil {
		e.logger.Debug("session close", zap.Error(err))
	}
}

// openFiles opens the SFTP subchannel and logs the outcome.
func openFiles(sess Session, op *operation) (FileChannel, status.Result, bool) {
	files, err := sess.Files()
	if err != nil {
		msg := fmt.Sprintf("SFTP connection failed: %v", err)
		op.failure(msg)
		return nil, status.Fail(status.KindProtocol, msg), false
	}
	op.success("SFTP channel established")
	return files, status.Result{}, true
}

// readStrategy is the outcome of probing the remote size.
type readStrategy interface {
	isReadStrategy()
}

// streamingRead is chosen when the size is known up front.
type streamingRead struct {
	total int64
}

// wholeFileRead is the fallback when stat is not available.
type wholeFileRead struct{}

func (streamingRead) isReadStrategy() {}
func (wholeFileRead) isReadStrategy() {}

func probeSize(files FileChannel, path string, op *operation) readStrategy {
	info, err := files.Stat(path)
	if err != nil {
		op.warning(fmt.Sprintf("stat failed (%v), falling back to whole-file read", err))
		return wholeFileRead{}
	}
	op.info(fmt.Sprintf("file size: %s", formatSize(info.Size())))
	return streamingRead{total: info.Size()}
}

// Read fetches the content of path on ep.
func (e *Engine) Read(ctx context.Context, ep Endpoint, path string, obs Observer) status.Result {
	op := newOperation(obs, e.logger.With(zap.String("op", "read"), zap.String("path", path)))

	sess, res, ok := e.open(ctx, ep, op)
	if !ok {
		return res
	}
	defer e.closeSession(sess)

	files, res, ok := openFiles(sess, op)
	if !ok {
		return res
	}
	defer files.Close()

	switch s := probeSize(files, path, op).(type) {
	case streamingRead:
		return e.streamRead(files, path, s.total, op)
	case wholeFileRead:
		return e.wholeRead(files, path, op)
	default:
		return status.Fail(status.KindUnknown, "read failed: unknown read strategy")
	}
}

func (e *Engine) streamRead(files FileChannel, path string, total int64, op *operation) status.Result {
	op.progress(streamStartPercent, fmt.Sprintf("reading file (%s)", formatSize(total)), "calculating")
	op.info("starting streamed read")

	file, err := files.Open(path)
	if err != nil {
		msg := fmt.Sprintf("read failed: %v", err)
		op.failure(msg)
		return status.Fail(status.KindOf(err), msg)
	}
	defer file.Close()

	start := e.now()
	var content bytes.Buffer
	if total > 0 {
		content.Grow(int(total))
	}
	buffer := make([]byte, e.chunkSize)
	nextMilestone := 25

	for {
		n, err := file.Read(buffer)
		if n > 0 {
			content.Write(buffer[:n])
			received := int64(content.Len())
			op.progress(
				streamPercent(received, total),
				fmt.Sprintf("received %s / %s", formatSize(received), formatSize(total)),
				speedLabel(received, e.now().Sub(start)),
			)
			for total > 0 && nextMilestone < 100 && received*100 >= int64(nextMilestone)*total {
				op.info(fmt.Sprintf("received %d%%", nextMilestone))
				nextMilestone += 25
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			msg := fmt.Sprintf("read failed: %v", err)
			op.failure(msg)
			return status.Fail(status.KindOf(err), msg)
		}
	}

	elapsed := e.now().Sub(start)
	op.progress(donePercent, "read complete", speedLabel(int64(content.Len()), elapsed))
	op.success(fmt.Sprintf("read %s in %.2fs", formatSize(int64(content.Len())), elapsed.Seconds()))
	return status.WithContent(content.String())
}

func (e *Engine) wholeRead(files FileChannel, path string, op *operation) status.Result {
	op.progress(wholeReadPercent, "reading file content", "estimating")
	op.info("reading whole file")

	start := e.now()
	file, err := files.Open(path)
	if err != nil {
		msg := fmt.Sprintf("read failed: %v", err)
		op.failure(msg)
		return status.Fail(status.KindOf(err), msg)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		msg := fmt.Sprintf("read failed: %v", err)
		op.failure(msg)
		return status.Fail(status.KindOf(err), msg)
	}

	elapsed := e.now().Sub(start)
	op.progress(donePercent, "read complete", speedLabel(int64(len(content)), elapsed))
	op.success(fmt.Sprintf("read %s in %.2fs", formatSize(int64(len(content))), elapsed.Seconds()))
	return status.WithContent(string(content))
}

// Write replaces the content of path on ep.
func (e *Engine) Write(ctx context.Context, ep Endpoint, path, content string, obs Observer) status.Result {
	op := newOperation(obs, e.logger.With(zap.String("op", "write"), zap.String("path", path)))

	sess, res, ok := e.open(ctx, ep, op)
	if !ok {
		return res
	}
	defer e.closeSession(sess)

	files, res, ok := openFiles(sess, op)
	if !ok {
		return res
	}
	defer files.Close()

	op.info(fmt.Sprintf("writing %s", formatSize(int64(len(content)))))
	if err := files.WriteFile(path, []byte(content)); err != nil {
		msg := fmt.Sprintf("write failed: %v", err)
		op.failure(msg)
		return status.Fail(status.KindOf(err), msg)
	}
	op.success("write complete")
	return status.Ok("file saved")
}

// Exec runs command on ep without privileges.
func (e *Engine) Exec(ctx context.Context, ep Endpoint, command string, obs Observer) status.Result {
	op := newOperation(obs, e.logger.With(zap.String("op", "exec")))

	sess, res, ok := e.open(ctx, ep, op)
	if !ok {
		return res
	}
	defer e.closeSession(sess)

	op.info(fmt.Sprintf("running %q", command))
	out, err := sess.Exec(ctx, command, nil)
	if err != nil {
		msg := fmt.Sprintf("exec failed: %v", err)
		op.failure(msg)
		return status.Fail(status.KindOf(err), msg)
	}
	return ExecResult(out, op)
}

// ExecResult maps a finished command to a Result; stderr wins as message.
func ExecResult(out ExecOutput, obs Observer) status.Result {
	if obs == nil {
		obs = Discard
	}
	if out.ExitCode == 0 {
		obs.OnLog(LogEvent{Message: "command succeeded", Type: LogSuccess})
		return status.WithOutput(out.Stdout)
	}
	msg := out.Stderr
	if msg == "" {
		msg = out.Stdout
	}
	if msg == "" {
		msg = fmt.Sprintf("command exited with status %d", out.ExitCode)
	}
	obs.OnLog(LogEvent{Message: msg, Type: LogError})
	res := status.Fail(status.Classify(msg), msg)
	res.Output = out.Stdout
	return res
}

// TestConnection opens and closes a session.
func (e *Engine) TestConnection(ctx context.Context, ep Endpoint, obs Observer) status.Result {
	op := newOperation(obs, e.logger.With(zap.String("op", "test")))

	sess, res, ok := e.open(ctx, ep, op)
	if !ok {
		return res
	}
	e.closeSession(sess)
	return status.Ok("connection successful")
}
