package main

import (
	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/status"
)

func checkEndpoint(ep remote.Endpoint) *status.Result {
	if err := ep.Validate(); err != nil {
		res := status.Fail(status.KindOperator, "invalid remote endpoint: "+err.Error())
		return &res
	}
	return nil
}

// ReadLocalFile returns the content of a local file.
func (a *App) ReadLocalFile(filePath string) (res status.Result) {
	defer a.recoverResult("read", &res)
	return a.local.ReadContent(filePath)
}

// ProbeLocalWritable checks that a local file exists and can be written.
func (a *App) ProbeLocalWritable(filePath string) (res status.Result) {
	defer a.recoverResult("probe", &res)
	return a.local.ProbeWritable(filePath)
}

// WriteLocalFile overwrites a local file and snapshots the new content.
func (a *App) WriteLocalFile(filePath, content string) (res status.Result) {
	defer a.recoverResult("write", &res)
	a.ignoreOwnWrite(filePath)
	res = a.local.WriteContent(filePath, content)
	if res.OK() {
		a.recordLocalSave(filePath, content)
	}
	return res
}

// WriteLocalFilePrivileged overwrites a local file through the escalation wrapper.
func (a *App) WriteLocalFilePrivileged(filePath, content, secret string) (res status.Result) {
	defer a.recoverResult("privileged write", &res)
	a.ignoreOwnWrite(filePath)
	res = a.local.WritePrivileged(a.opContext(), filePath, content, secret)
	if res.OK() {
		a.recordLocalSave(filePath, content)
	}
	return res
}

// ExecLocal runs a shell command on this machine.
func (a *App) ExecLocal(command string) (res status.Result) {
	defer a.recoverResult("exec", &res)
	return a.local.Exec(a.opContext(), command)
}

// ExecLocalPrivileged runs a shell command on this machine with privileges.
func (a *App) ExecLocalPrivileged(command, secret string) (res status.Result) {
	defer a.recoverResult("privileged exec", &res)
	return a.priv.ExecLocal(a.opContext(), command, secret)
}

// ReadRemoteFile downloads a remote file, streaming progress events.
func (a *App) ReadRemoteFile(filePath string, endpoint remote.Endpoint) (res status.Result) {
	defer a.recoverResult("remote read", &res)
	if bad := checkEndpoint(endpoint); bad != nil {
		return *bad
	}
	return a.engine.Read(a.opContext(), endpoint, filePath, a.observer(filePath))
}

// WriteRemoteFile uploads content over a remote file.
func (a *App) WriteRemoteFile(filePath, content string, endpoint remote.Endpoint) (res status.Result) {
	defer a.recoverResult("remote write", &res)
	if bad := checkEndpoint(endpoint); bad != nil {
		return *bad
	}
	return a.engine.Write(a.opContext(), endpoint, filePath, content, a.observer(filePath))
}

// WriteRemoteFilePrivileged uploads to a temp file and copies it into place with privileges.
func (a *App) WriteRemoteFilePrivileged(filePath, content string, endpoint remote.Endpoint, secret string) (res status.Result) {
	defer a.recoverResult("remote privileged write", &res)
	if bad := checkEndpoint(endpoint); bad != nil {
		return *bad
	}
	return a.priv.WriteRemote(a.opContext(), endpoint, filePath, content, secret, a.observer(filePath))
}

// ExecRemote runs a command on the remote host.
func (a *App) ExecRemote(command string, endpoint remote.Endpoint) (res status.Result) {
	defer a.recoverResult("remote exec", &res)
	if bad := checkEndpoint(endpoint); bad != nil {
		return *bad
	}
	return a.engine.Exec(a.opContext(), endpoint, command, a.observer(""))
}

// ExecRemotePrivileged runs a command on the remote host with privileges.
func (a *App) ExecRemotePrivileged(command string, endpoint remote.Endpoint, secret string) (res status.Result) {
	defer a.recoverResult("remote privileged exec", &res)
	if bad := checkEndpoint(endpoint); bad != nil {
		return *bad
	}
	return a.priv.ExecRemote(a.opContext(), endpoint, command, secret, a.observer(""))
}

// TestRemoteConnection opens and closes a session without touching files.
func (a *App) TestRemoteConnection(endpoint remote.Endpoint) (res status.Result) {
	defer a.recoverResult("connection test", &res)
	if bad := checkEndpoint(endpoint); bad != nil {
		return *bad
	}
	return a.engine.TestConnection(a.opContext(), endpoint, a.observer(""))
}
