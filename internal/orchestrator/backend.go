package orchestrator

import (
	"context"

	"github.com/yzhelezko/confedit/internal/localfs"
	"github.com/yzhelezko/confedit/internal/privexec"
	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/status"
)

// Backend is every I/O path the orchestrator routes to.
type Backend interface {
	ReadLocal(path string) status.Result
	ProbeLocalWritable(path string) status.Result
	WriteLocal(path, content string) status.Result
	WriteLocalPrivileged(ctx context.Context, path, content, secret string) status.Result
	ExecLocal(ctx context.Context, command string) status.Result
	ExecLocalPrivileged(ctx context.Context, command, secret string) status.Result

	ReadRemote(ctx context.Context, ep remote.Endpoint, path string, obs remote.Observer) status.Result
	WriteRemote(ctx context.Context, ep remote.Endpoint, path, content string, obs remote.Observer) status.Result
	WriteRemotePrivileged(ctx context.Context, ep remote.Endpoint, path, content, secret string, obs remote.Observer) status.Result
	ExecRemote(ctx context.Context, ep remote.Endpoint, command string, obs remote.Observer) status.Result
	ExecRemotePrivileged(ctx context.Context, ep remote.Endpoint, command, secret string, obs remote.Observer) status.Result
}

// Services is the production Backend.
type Services struct {
	Local  *localfs.Gateway
	Remote *remote.Engine
	Priv   *privexec.Executor
}

var _ Backend = (*Services)(nil)

func (s *Services) ReadLocal(path string) status.Result {
	return s.Local.ReadContent(path)
}

func (s *Services) ProbeLocalWritable(path string) status.Result {
	return s.Local.ProbeWritable(path)
}

func (s *Services) WriteLocal(path, content string) status.Result {
	return s.Local.WriteContent(path, content)
}

func (s *Services) WriteLocalPrivileged(ctx context.Context, path, content, secret string) status.Result {
	return s.Local.WritePrivileged(ctx, path, content, secret)
}

func (s *Services) ExecLocal(ctx context.Context, command string) status.Result {
	return s.Local.Exec(ctx, command)
}

func (s *Services) ExecLocalPrivileged(ctx context.Context, command, secret string) status.Result {
	return s.Priv.ExecLocal(ctx, command, secret)
}

func (s *Services) ReadRemote(ctx context.Context, ep remote.Endpoint, path string, obs remote.Observer) status.Result {
	return s.Remote.Read(ctx, ep, path, obs)
}

func (s *Services) WriteRemote(ctx context.Context, ep remote.Endpoint, path, content string, obs remote.Observer) status.Result {
	return s.Remote.Write(ctx, ep, path, content, obs)
}

func (s *Services) WriteRemotePrivileged(ctx context.Context, ep remote.Endpoint, path, content, secret string, obs remote.Observer) status.Result {
	return s.Priv.WriteRemote(ctx, ep, path, content, secret, obs)
}

func (s *Services) ExecRemote(ctx context.Context, ep remote.Endpoint, command string, obs remote.Observer) status.Result {
	return s.Remote.Exec(ctx, ep, command, obs)
}

func (s *Services) ExecRemotePrivileged(ctx context.Context, ep remote.Endpoint, command, secret string, obs remote.Observer) status.Result {
	return s.Priv.ExecRemote(ctx, ep, command, secret, obs)
}
