package remote

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzhelezko/confedit/internal/status"
)

func newTestEngine(conn Connector, chunk int) *Engine {
	return NewEngine(conn, nil, WithChunkSize(chunk))
}

func TestReadStreamingProgressIsMonotonic(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 100) // 1000 bytes, 10 chunks of 100
	channel := &fakeChannel{content: content}
	session := &fakeSession{files: channel}
	engine := newTestEngine(&fakeConnector{session: session}, 100)
	rec := &recorder{}

	res := engine.Read(context.Background(), testEndpoint, "/etc/nginx/nginx.conf", rec)

	require.Equal(t, status.Success, res.Code)
	assert.Equal(t, string(content), res.Content)

	require.Len(t, rec.progress, 12, "start + one per chunk + completion")
	assert.Equal(t, 60, rec.progress[0].Progress)
	for i := 1; i < len(rec.progress); i++ {
		assert.GreaterOrEqual(t, rec.progress[i].Progress, rec.progress[i-1].Progress)
	}
	for _, ev := range rec.progress[1:11] {
		assert.LessOrEqual(t, ev.Progress, 90)
	}
	assert.Equal(t, 100, rec.progress[len(rec.progress)-1].Progress)

	assert.Equal(t, 1, session.closed)
	assert.Equal(t, 1, channel.closed)
	assert.Equal(t, 1, channel.fileClosed)
}

func TestReadStreamingLogSequence(t *testing.T) {
	channel := &fakeChannel{content: bytes.Repeat([]byte("x"), 400)}
	engine := newTestEngine(&fakeConnector{session: &fakeSession{files: channel}}, 100)
	rec := &recorder{}

	res := engine.Read(context.Background(), testEndpoint, "/etc/hosts", rec)
	require.True(t, res.OK())

	assert.Equal(t, []LogType{
		LogInfo,    // connecting
		LogSuccess, // connected
		LogSuccess, // sftp
		LogInfo,    // size
		LogInfo,    // streaming
		LogInfo,    // 25%
		LogInfo,    // 50%
		LogInfo,    // 75%
		LogSuccess, // complete
	}, rec.types())
}

func TestReadUnknownSizeFallsBackToWholeRead(t *testing.T) {
	channel := &fakeChannel{content: []byte("worker_processes auto;\n"), statErr: errors.New("unsupported")}
	session := &fakeSession{files: channel}
	engine := newTestEngine(&fakeConnector{session: session}, 4)
	rec := &recorder{}

	res := engine.Read(context.Background(), testEndpoint, "/etc/nginx/nginx.conf", rec)

	require.Equal(t, status.Success, res.Code)
	assert.Equal(t, "worker_processes auto;\n", res.Content)

	require.Len(t, rec.progress, 2)
	assert.Equal(t, 70, rec.progress[0].Progress)
	assert.Equal(t, "estimating", rec.progress[0].Speed)
	assert.Equal(t, 100, rec.progress[1].Progress)
	assert.Contains(t, rec.progress[1].Speed, "KB/s")

	assert.Equal(t, []LogType{LogInfo, LogSuccess, LogSuccess, LogWarning, LogInfo, LogSuccess}, rec.types())
	assert.Equal(t, 1, session.closed)
}

func TestReadSubchannelFailure(t *testing.T) {
	session := &fakeSession{filesErr: errors.New("subsystem request failed")}
	engine := newTestEngine(&fakeConnector{session: session}, 100)
	rec := &recorder{}

	res := engine.Read(context.Background(), testEndpoint, "/etc/hosts", rec)

	assert.Equal(t, status.Failure, res.Code)
	assert.Equal(t, status.KindProtocol, res.Kind)
	assert.Equal(t, "SFTP connection failed: subsystem request failed", res.Msg)
	assert.Equal(t, 1, session.closed)
	assert.Equal(t, LogError, rec.logs[len(rec.logs)-1].Type)
}

func TestReadConnectFailure(t *testing.T) {
	conn := &fakeConnector{err: &ConnectError{Message: "ssh: unable to authenticate"}}
	engine := newTestEngine(conn, 100)
	rec := &recorder{}

	res := engine.Read(context.Background(), testEndpoint, "/etc/hosts", rec)

	assert.Equal(t, status.Failure, res.Code)
	assert.Equal(t, status.KindConnectivity, res.Kind)
	assert.Empty(t, rec.progress)
	assert.Equal(t, []LogType{LogInfo, LogError}, rec.types())
}

func TestReadStreamErrorClosesSession(t *testing.T) {
	channel := &fakeChannel{content: bytes.Repeat([]byte("y"), 200), readErr: errors.New("connection lost")}
	session := &fakeSession{files: channel}
	engine := newTestEngine(&fakeConnector{session: session}, 50)

	res := engine.Read(context.Background(), testEndpoint, "/etc/hosts", nil)

	assert.Equal(t, status.Failure, res.Code)
	assert.Equal(t, "read failed: connection lost", res.Msg)
	assert.Equal(t, 1, session.closed)
	assert.Equal(t, 1, channel.fileClosed)
}

func TestWrite(t *testing.T) {
	channel := &fakeChannel{}
	session := &fakeSession{files: channel}
	engine := newTestEngine(&fakeConnector{session: session}, 100)

	res := engine.Write(context.Background(), testEndpoint, "/home/deploy/.bashrc", "export A=1\n", nil)

	require.Equal(t, status.Success, res.Code)
	assert.Equal(t, "export A=1\n", string(channel.written["/home/deploy/.bashrc"]))
	assert.Equal(t, 1, session.closed)
}

func TestWritePermissionDenied(t *testing.T) {
	channel := &fakeChannel{writeErr: os.ErrPermission}
	session := &fakeSession{files: channel}
	engine := newTestEngine(&fakeConnector{session: session}, 100)

	res := engine.Write(context.Background(), testEndpoint, "/etc/hosts", "127.0.0.1 x\n", nil)

	assert.Equal(t, status.Failure, res.Code)
	assert.Equal(t, status.KindPermission, res.Kind)
	assert.Equal(t, "write failed: permission denied", res.Msg)
	assert.Equal(t, 1, session.closed)
}

func TestExecAndResultMapping(t *testing.T) {
	session := &fakeSession{execOut: ExecOutput{ExitCode: 0, Stdout: "active\n"}}
	engine := newTestEngine(&fakeConnector{session: session}, 100)

	res := engine.Exec(context.Background(), testEndpoint, "systemctl is-active nginx", nil)
	assert.Equal(t, status.Success, res.Code)
	assert.Equal(t, "active\n", res.Output)
	assert.Nil(t, session.stdins[0])
	assert.Equal(t, 1, session.closed)

	failed := ExecResult(ExecOutput{ExitCode: 1, Stderr: "Failed to reload nginx.service: Interactive authentication required."}, nil)
	assert.Equal(t, status.KindPermission, failed.Kind)

	silent := ExecResult(ExecOutput{ExitCode: 3}, nil)
	assert.Equal(t, "command exited with status 3", silent.Msg)
}

func TestTestConnection(t *testing.T) {
	session := &fakeSession{}
	engine := newTestEngine(&fakeConnector{session: session}, 100)

	res := engine.TestConnection(context.Background(), testEndpoint, nil)
	assert.True(t, res.OK())
	assert.Equal(t, 1, session.closed)
}

func TestStreamPercentAndSpeed(t *testing.T) {
	assert.Equal(t, 60, streamPercent(0, 100))
	assert.Equal(t, 75, streamPercent(50, 100))
	assert.Equal(t, 90, streamPercent(100, 100))
	assert.Equal(t, 90, streamPercent(500, 100))
	assert.Equal(t, 90, streamPercent(10, 0))

	assert.Equal(t, "1.0 KB/s", speedLabel(1024, time.Second))
	assert.Equal(t, "2.5 KB/s", speedLabel(5120, 2*time.Second))
}

func TestEndpointAddress(t *testing.T) {
	assert.Equal(t, "example.org:22", Endpoint{Host: "example.org"}.Address())
	assert.Equal(t, "[::1]:2222", Endpoint{Host: "::1", Port: 2222}.Address())
	assert.NotContains(t, testEndpoint.String(), "pw")
}
