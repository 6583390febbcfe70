// Package localfs reads and writes configuration files on this machine,
// with explicit access probes and a privileged write path.
package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/privexec"
	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/status"
)

// PrivilegedRunner runs a shell command with elevated privileges.
type PrivilegedRunner interface {
	ExecLocal(ctx context.Context, command, secret string) status.Result
}

// Gateway performs local file I/O. Every path is home-expanded first.
type Gateway struct {
	homeDir string
	tempDir string
	shell   string
	priv    PrivilegedRunner
	logger  *zap.Logger
}

// NewGateway creates a gateway resolving ~ against the user's home.
func NewGateway(priv PrivilegedRunner, logger *zap.Logger) *Gateway {
	home, _ := os.UserHomeDir()
	return NewGatewayWithHome(home, priv, logger)
}

// NewGatewayWithHome creates a gateway with a custom home (for testing).
func NewGatewayWithHome(home string, priv PrivilegedRunner, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return &Gateway{
		homeDir: home,
		tempDir: os.TempDir(),
		shell:   shell,
		priv:    priv,
		logger:  logger,
	}
}

// ExpandHome replaces a leading ~ with the home directory.
func (g *Gateway) ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(g.homeDir, path[2:])
	}
	if path == "~" {
		return g.homeDir
	}
	return path
}

// HomeDir returns the directory ~ expands to.
func (g *Gateway) HomeDir() string {
	return g.homeDir
}

// ReadContent checks existence and read access, then reads path.
func (g *Gateway) ReadContent(path string) status.Result {
	expanded := g.ExpandHome(path)

	if _, err := os.Stat(expanded); err != nil {
		return status.FromError("cannot access file", err)
	}
	if err := canRead(expanded); err != nil {
		return status.Fail(status.KindPermission, fmt.Sprintf("file not readable: %s", expanded))
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return status.FromError("read error", err)
	}
	return status.WithContent(string(data))
}

// CanRead reports whether path exists and is readable. Errors are not reported.
func (g *Gateway) CanRead(path string) bool {
	expanded := g.ExpandHome(path)
	if _, err := os.Stat(expanded); err != nil {
		return false
	}
	return canRead(expanded) == nil
}

// ProbeWritable checks existence and write access without reading.
func (g *Gateway) ProbeWritable(path string) status.Result {
	expanded := g.ExpandHome(path)

	if _, err := os.Stat(expanded); err != nil {
		return status.FromError("cannot access file", err)
	}
	if err := canWrite(expanded); err != nil {
		g.logger.Debug("write probe failed", zap.String("path", expanded), zap.Error(err))
		return status.Fail(status.KindPermission, fmt.Sprintf("file not writable: %s", expanded))
	}
	return status.Ok("writable")
}

// WriteContent overwrites path in place. No rename, no backup.
func (g *Gateway) WriteContent(path, content string) status.Result {
	expanded := g.ExpandHome(path)

	if err := os.WriteFile(expanded, []byte(content), 0o644); err != nil {
		return status.FromError("write failed", err)
	}
	g.logger.Info("file written", zap.String("path", expanded), zap.Int("bytes", len(content)))
	return status.Ok("file saved")
}

// WritePrivileged stages content in a temp file and copies it over path
// with privileges. The temp file is removed on every exit path, best effort.
func (g *Gateway) WritePrivileged(ctx context.Context, path, content, secret string) status.Result {
	if secret == "" {
		return status.Fail(status.KindOperator, "password is required")
	}
	if g.priv == nil {
		return status.Fail(status.KindUnknown, "privileged writes are not available")
	}
	expanded := g.ExpandHome(path)

	tmp := filepath.Join(g.tempDir, fmt.Sprintf(".confedit-%d-%s", time.Now().UnixNano(), filepath.Base(expanded)))
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return status.FromError("temp file write failed", err)
	}
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			g.logger.Warn("temp file left behind", zap.String("path", tmp), zap.Error(err))
		}
	}()

	res := g.priv.ExecLocal(ctx, privexec.CopyCommand(tmp, expanded), secret)
	if !res.OK() {
		res.Msg = "privileged copy failed: " + res.Msg
		return res
	}
	g.logger.Info("file written with elevated privileges", zap.String("path", expanded))
	return status.Ok("file saved with elevated privileges")
}

// Exec runs command through the user's shell without privileges.
func (g *Gateway) Exec(ctx context.Context, command string) status.Result {
	if strings.TrimSpace(command) == "" {
		return status.Fail(status.KindOperator, "command is required")
	}

	cmd := exec.CommandContext(ctx, g.shell, "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	out := remote.ExecOutput{}
	err := cmd.Run()
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return status.FromError("exec failed", err)
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return remote.ExecResult(out, nil)
}
