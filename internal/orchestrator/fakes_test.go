package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/yzhelezko/confedit/internal/history"
	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/status"
)

// fakeBackend keeps files in memory. Paths in readOnly fail the write probe
// and commands in denied fail plain execution, both with permission errors.
type fakeBackend struct {
	mu       sync.Mutex
	files    map[string]string
	readOnly map[string]bool
	denied   map[string]bool
	secret   string
	calls    []string

	// writeGate, when set, blocks WriteLocal until it is closed.
	writeGate    chan struct{}
	writeEntered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		files:    map[string]string{},
		readOnly: map[string]bool{},
		denied:   map[string]bool{},
		secret:   "pw",
	}
}

func (f *fakeBackend) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) ReadLocal(path string) status.Result {
	f.record("read %s", path)
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	if !ok {
		return status.Fail(status.KindUnknown, "cannot access file: no such file or directory")
	}
	return status.WithContent(content)
}

func (f *fakeBackend) ProbeLocalWritable(path string) status.Result {
	f.record("probe %s", path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readOnly[path] {
		return status.Fail(status.KindPermission, "file not writable: "+path)
	}
	return status.Ok("writable")
}

func (f *fakeBackend) WriteLocal(path, content string) status.Result {
	f.record("write %s", path)
	if f.writeGate != nil {
		f.writeEntered <- struct{}{}
		<-f.writeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
	return status.Ok("file saved")
}

func (f *fakeBackend) WriteLocalPrivileged(_ context.Context, path, content, secret string) status.Result {
	f.record("writePriv %s", path)
	if secret != f.secret {
		return status.Fail(status.KindUnknown, "privileged copy failed: Sorry, try again.")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
	return status.Ok("file saved with elevated privileges")
}

func (f *fakeBackend) ExecLocal(_ context.Context, command string) status.Result {
	f.record("exec %s", command)
	if f.denied[command] {
		return status.Fail(status.KindPermission, "Permission denied")
	}
	return status.WithOutput("ok")
}

func (f *fakeBackend) ExecLocalPrivileged(_ context.Context, command, secret string) status.Result {
	f.record("execPriv %s", command)
	if secret != f.secret {
		return status.Fail(status.KindUnknown, "Sorry, try again.")
	}
	return status.WithOutput("ok")
}

func (f *fakeBackend) ReadRemote(_ context.Context, ep remote.Endpoint, path string, _ remote.Observer) status.Result {
	f.record("readRemote %s:%s", ep.Host, path)
	return f.ReadLocal(ep.Host + ":" + path)
}

func (f *fakeBackend) WriteRemote(_ context.Context, ep remote.Endpoint, path, content string, _ remote.Observer) status.Result {
	f.record("writeRemote %s:%s", ep.Host, path)
	key := ep.Host + ":" + path
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readOnly[key] {
		return status.Fail(status.KindPermission, "write failed: permission denied")
	}
	f.files[key] = content
	return status.Ok("file saved")
}

func (f *fakeBackend) WriteRemotePrivileged(_ context.Context, ep remote.Endpoint, path, content, secret string, _ remote.Observer) status.Result {
	f.record("writeRemotePriv %s:%s", ep.Host, path)
	if secret != f.secret {
		return status.Fail(status.KindUnknown, "privileged copy failed: Sorry, try again.")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[ep.Host+":"+path] = content
	return status.Ok("file saved with elevated privileges")
}

func (f *fakeBackend) ExecRemote(_ context.Context, ep remote.Endpoint, command string, _ remote.Observer) status.Result {
	f.record("execRemote %s %s", ep.Host, command)
	if f.denied[command] {
		return status.Fail(status.KindPermission, "Failed to reload nginx.service: Interactive authentication required.")
	}
	return status.WithOutput("ok")
}

func (f *fakeBackend) ExecRemotePrivileged(_ context.Context, ep remote.Endpoint, command, secret string, _ remote.Observer) status.Result {
	f.record("execRemotePriv %s %s", ep.Host, command)
	if secret != f.secret {
		return status.Fail(status.KindUnknown, "Sorry, try again.")
	}
	return status.WithOutput("ok")
}

type fakeHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (h *fakeHistory) SaveHistory(filePath, fileName, content string) (history.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := history.Record{FilePath: filePath, FileName: fileName, Content: content, SizeBytes: int64(len(content))}
	h.records = append(h.records, rec)
	return rec, nil
}

func (h *fakeHistory) contents() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		out = append(out, r.Content)
	}
	return out
}
