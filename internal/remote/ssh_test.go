package remote

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bufferWriter collects writes and fails on Close when closeErr is set.
type bufferWriter struct {
	mu       sync.Mutex
	data     []byte
	closeErr error
}

func (w *bufferWriter) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if end := int(off) + len(p); end > len(w.data) {
		w.data = append(w.data, make([]byte, end-len(w.data))...)
	}
	copy(w.data[off:], p)
	return len(p), nil
}

func (w *bufferWriter) Close() error {
	return w.closeErr
}

type putHandler struct {
	writer *bufferWriter
}

func (h putHandler) Filewrite(*sftp.Request) (io.WriterAt, error) {
	return h.writer, nil
}

type pipeConn struct {
	*io.PipeReader
	*io.PipeWriter
}

func (c pipeConn) Close() error {
	c.PipeReader.Close()
	return c.PipeWriter.Close()
}

func newPipeChannel(t *testing.T, w *bufferWriter) *sftpChannel {
	t.Helper()
	handlers := sftp.InMemHandler()
	handlers.FilePut = putHandler{writer: w}

	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()
	server := sftp.NewRequestServer(pipeConn{serverRead, serverWrite}, handlers)
	go server.Serve()

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	require.NoError(t, err)
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return &sftpChannel{client: client}
}

func TestSFTPWriteFile(t *testing.T) {
	w := &bufferWriter{}
	channel := newPipeChannel(t, w)

	require.NoError(t, channel.WriteFile("/etc/app.conf", []byte("listen 80\n")))
	assert.Equal(t, "listen 80\n", string(w.data))
}

func TestSFTPWriteFileReportsCloseError(t *testing.T) {
	w := &bufferWriter{closeErr: errors.New("disk quota exceeded")}
	channel := newPipeChannel(t, w)

	err := channel.WriteFile("/etc/app.conf", []byte("listen 80\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close remote file /etc/app.conf")
}
