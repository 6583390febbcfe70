// Package privexec runs commands behind an escalation wrapper, feeding the
// secret through the child's standard input.
//
// The secret is written as soon as the process starts instead of waiting for
// a password prompt. Prompt text differs between targets and shells, so it is
// never detected; prompt-looking stderr lines are dropped from the report and
// never trigger a second write.
package privexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/status"
)

// DefaultProgram is the escalation wrapper.
const DefaultProgram = "sudo"

// ExecResult is what a privileged command left behind.
type ExecResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// OK reports a zero exit.
func (r ExecResult) OK() bool {
	return r.ExitCode == 0
}

// SpawnFunc builds the process for argv. Replaced in tests.
type SpawnFunc func(ctx context.Context, argv []string) *exec.Cmd

func defaultSpawn(ctx context.Context, argv []string) *exec.Cmd {
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}

// Executor runs privileged commands locally or over a fresh remote session.
type Executor struct {
	program   string
	spawn     SpawnFunc
	connector remote.Connector
	logger    *zap.Logger
}

// Option customises an Executor.
type Option func(*Executor)

// WithProgram sets the escalation program. An empty program runs commands
// without a wrapper.
func WithProgram(program string) Option {
	return func(e *Executor) { e.program = program }
}

// WithSpawn replaces process creation.
func WithSpawn(spawn SpawnFunc) Option {
	return func(e *Executor) { e.spawn = spawn }
}

// WithConnector sets the transport for remote commands.
func WithConnector(c remote.Connector) Option {
	return func(e *Executor) { e.connector = c }
}

// New creates an Executor.
func New(logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		program: DefaultProgram,
		spawn:   defaultSpawn,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// wrapper reads the secret from stdin (-S) and prints no prompt (-p '').
func (e *Executor) wrapper() []string {
	if e.program == "" {
		return nil
	}
	return []string{e.program, "-S", "-p", ""}
}

// LocalArgv is the argument vector of a local privileged command.
func (e *Executor) LocalArgv(command string) []string {
	return append(e.wrapper(), "sh", "-c", command)
}

// RemoteCommand is the command line sent to the remote shell.
func (e *Executor) RemoteCommand(command string) string {
	parts := e.wrapper()
	quoted := make([]string, 0, len(parts)+3)
	for _, p := range parts {
		quoted = append(quoted, Quote(p))
	}
	quoted = append(quoted, "sh", "-c", Quote(command))
	return strings.Join(quoted, " ")
}

// Quote single-quotes s for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

var promptLine = regexp.MustCompile(`(?i)^\s*(\[sudo\]\s*)?(password|密码)(\s+for\s+[^:]*)?\s*[:：]\s*$`)

// filterPrompts drops prompt-looking lines from stderr.
func filterPrompts(stderr string) string {
	if stderr == "" {
		return ""
	}
	lines := strings.Split(stderr, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if promptLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func checkInput(command, secret string) *status.Result {
	if strings.TrimSpace(command) == "" {
		r := status.Fail(status.KindOperator, "command is required")
		return &r
	}
	if secret == "" {
		r := status.Fail(status.KindOperator, "password is required")
		return &r
	}
	return nil
}

// syncBuffer lets the exec copier goroutine write while we read at the end.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// RunLocal spawns the wrapped command with piped stdio. The secret only ever
// travels through stdin.
func (e *Executor) RunLocal(ctx context.Context, command, secret string) (ExecResult, error) {
	argv := e.LocalArgv(command)
	cmd := e.spawn(ctx, argv)

	var stdout, stderr syncBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	e.logger.Info("starting privileged command", zap.Strings("argv", argv))
	if err := cmd.Start(); err != nil {
		return ExecResult{}, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	if _, err := stdin.Write([]byte(secret + "\n")); err != nil {
		// The child may exit before reading; its exit status tells the story.
		e.logger.Debug("secret write", zap.Error(err))
	}
	stdin.Close()

	err = cmd.Wait()
	res := ExecResult{Stdout: stdout.String(), Stderr: filterPrompts(stderr.String())}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("privileged command failed: %w", err)
	}
	return res, nil
}

// ExecLocal runs command with privileges on this machine.
func (e *Executor) ExecLocal(ctx context.Context, command, secret string) status.Result {
	if bad := checkInput(command, secret); bad != nil {
		return *bad
	}
	res, err := e.RunLocal(ctx, command, secret)
	if err != nil {
		e.logger.Error("privileged command", zap.Error(err))
		return status.Fail(status.KindOf(err), err.Error())
	}
	return toStatus(res)
}

func toStatus(res ExecResult) status.Result {
	if res.OK() {
		return status.WithOutput(res.Stdout)
	}
	return remote.ExecResult(remote.ExecOutput{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}, nil)
}

func logTo(obs remote.Observer, logger *zap.Logger, t remote.LogType, msg string) {
	if t == remote.LogError {
		logger.Error(msg)
	} else {
		logger.Info(msg)
	}
	obs.OnLog(remote.LogEvent{Message: msg, Type: t})
}

// ExecRemote runs command with privileges on ep over its own session.
func (e *Executor) ExecRemote(ctx context.Context, ep remote.Endpoint, command, secret string, obs remote.Observer) status.Result {
	if bad := checkInput(command, secret); bad != nil {
		return *bad
	}
	if obs == nil {
		obs = remote.Discard
	}
	if e.connector == nil {
		return status.Fail(status.KindConnectivity, "no remote transport configured")
	}

	logTo(obs, e.logger, remote.LogInfo, fmt.Sprintf("connecting to %s", ep))
	sess, err := e.connector.Connect(ctx, ep, obs)
	if err != nil {
		logTo(obs, e.logger, remote.LogError, fmt.Sprintf("connection failed: %v", err))
		return status.Fail(status.KindConnectivity, err.Error())
	}
	defer sess.Close()

	return e.runOnSession(ctx, sess, command, secret, obs)
}

func (e *Executor) runOnSession(ctx context.Context, sess remote.Session, command, secret string, obs remote.Observer) status.Result {
	logTo(obs, e.logger, remote.LogInfo, fmt.Sprintf("running privileged %q", command))
	out, err := sess.Exec(ctx, e.RemoteCommand(command), []byte(secret+"\n"))
	if err != nil {
		msg := fmt.Sprintf("privileged command failed: %v", err)
		logTo(obs, e.logger, remote.LogError, msg)
		return status.Fail(status.KindOf(err), msg)
	}
	out.Stderr = filterPrompts(out.Stderr)
	return remote.ExecResult(out, obs)
}

// WriteRemote uploads content to a temp file on ep and copies it over path
// with privileges, all on one session.
func (e *Executor) WriteRemote(ctx context.Context, ep remote.Endpoint, path, content, secret string, obs remote.Observer) status.Result {
	if secret == "" {
		return status.Fail(status.KindOperator, "password is required")
	}
	if obs == nil {
		obs = remote.Discard
	}
	if e.connector == nil {
		return status.Fail(status.KindConnectivity, "no remote transport configured")
	}

	logTo(obs, e.logger, remote.LogInfo, fmt.Sprintf("connecting to %s", ep))
	sess, err := e.connector.Connect(ctx, ep, obs)
	if err != nil {
		logTo(obs, e.logger, remote.LogError, fmt.Sprintf("connection failed: %v", err))
		return status.Fail(status.KindConnectivity, err.Error())
	}
	defer sess.Close()

	files, err := sess.Files()
	if err != nil {
		msg := fmt.Sprintf("SFTP connection failed: %v", err)
		logTo(obs, e.logger, remote.LogError, msg)
		return status.Fail(status.KindProtocol, msg)
	}
	defer files.Close()

	tmp := TempName("/tmp", path)
	if err := files.WriteFile(tmp, []byte(content)); err != nil {
		msg := fmt.Sprintf("temp file write failed: %v", err)
		logTo(obs, e.logger, remote.LogError, msg)
		return status.Fail(status.KindOf(err), msg)
	}
	// Best effort; after a successful copy the file is already gone.
	defer files.Remove(tmp)

	res := e.runOnSession(ctx, sess, CopyCommand(tmp, path), secret, obs)
	if !res.OK() {
		res.Msg = "privileged copy failed: " + res.Msg
		return res
	}
	return status.Ok("file saved with elevated privileges")
}

// CopyCommand copies src over dst, keeping dst's ownership and mode, then
// removes src.
func CopyCommand(src, dst string) string {
	return fmt.Sprintf("cp %s %s && rm -f %s", Quote(src), Quote(dst), Quote(src))
}

// TempName returns a collision-resistant temp path in dir for target.
func TempName(dir, target string) string {
	return path.Join(dir, fmt.Sprintf(".confedit-%d-%s", time.Now().UnixNano(), path.Base(target)))
}
