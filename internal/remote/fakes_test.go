package remote

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"sync"
	"time"
)

type fakeInfo struct {
	size int64
}

func (f fakeInfo) Name() string       { return "fake" }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return nil }

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

type countingCloser struct {
	io.Reader
	closed *int
}

func (c countingCloser) Close() error {
	*c.closed++
	return nil
}

type fakeChannel struct {
	mu         sync.Mutex
	content    []byte
	statErr    error
	openErr    error
	readErr    error
	writeErr   error
	removeErr  error
	written    map[string][]byte
	removed    []string
	closed     int
	fileClosed int
}

func (c *fakeChannel) Stat(string) (fs.FileInfo, error) {
	if c.statErr != nil {
		return nil, c.statErr
	}
	return fakeInfo{size: int64(len(c.content))}, nil
}

func (c *fakeChannel) Open(string) (io.ReadCloser, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	var r io.Reader = bytes.NewReader(c.content)
	if c.readErr != nil {
		r = io.MultiReader(bytes.NewReader(c.content[:len(c.content)/2]), errReader{c.readErr})
	}
	return countingCloser{Reader: r, closed: &c.fileClosed}, nil
}

func (c *fakeChannel) WriteFile(path string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.written == nil {
		c.written = map[string][]byte{}
	}
	c.written[path] = append([]byte(nil), data...)
	return nil
}

func (c *fakeChannel) Remove(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, path)
	return c.removeErr
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

type fakeSession struct {
	files    *fakeChannel
	filesErr error
	execOut  ExecOutput
	execErr  error
	commands []string
	stdins   [][]byte
	closed   int
}

func (s *fakeSession) Files() (FileChannel, error) {
	if s.filesErr != nil {
		return nil, s.filesErr
	}
	return s.files, nil
}

func (s *fakeSession) Exec(_ context.Context, command string, stdin []byte) (ExecOutput, error) {
	s.commands = append(s.commands, command)
	s.stdins = append(s.stdins, stdin)
	return s.execOut, s.execErr
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeConnector struct {
	session *fakeSession
	err     error
	calls   int
}

func (c *fakeConnector) Connect(context.Context, Endpoint, Observer) (Session, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

type recorder struct {
	mu       sync.Mutex
	progress []ProgressEvent
	logs     []LogEvent
}

func (r *recorder) OnProgress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, ev)
}

func (r *recorder) OnLog(ev LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, ev)
}

func (r *recorder) types() []LogType {
	out := make([]LogType, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Type)
	}
	return out
}

var testEndpoint = Endpoint{Host: "10.0.0.5", Port: 22, Username: "deploy", Password: "pw"}
