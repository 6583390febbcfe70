package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	DefaultSSHTimeout             = 30 * time.Second
	DefaultSFTPMaxPacketSize      = 256 * 1024
	DefaultSFTPConcurrentRequests = 64
)

// SSHConfig tunes the transport. Zero values fall back to defaults.
type SSHConfig struct {
	Timeout               time.Duration
	KnownHostsPath        string
	StrictHostKeyChecking bool
	MaxPacketSize         int
	ConcurrentRequests    int
	UseConcurrentIO       bool
}

// DefaultSSHConfig returns the transport defaults.
func DefaultSSHConfig() SSHConfig {
	return SSHConfig{
		Timeout:            DefaultSSHTimeout,
		MaxPacketSize:      DefaultSFTPMaxPacketSize,
		ConcurrentRequests: DefaultSFTPConcurrentRequests,
		UseConcurrentIO:    true,
	}
}

// SSHConnector dials a fresh SSH client for every Connect call.
type SSHConnector struct {
	cfg    SSHConfig
	logger *zap.Logger
}

// NewSSHConnector creates a connector. A nil logger is replaced by a no-op one.
func NewSSHConnector(cfg SSHConfig, logger *zap.Logger) *SSHConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSSHTimeout
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = DefaultSFTPMaxPacketSize
	}
	if cfg.ConcurrentRequests == 0 {
		cfg.ConcurrentRequests = DefaultSFTPConcurrentRequests
	}
	return &SSHConnector{cfg: cfg, logger: logger}
}

// Connect authenticates against ep. The handshake completing is the ready
// signal; anything else is a *ConnectError.
func (c *SSHConnector) Connect(ctx context.Context, ep Endpoint, obs Observer) (Session, error) {
	if obs == nil {
		obs = Discard
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, &ConnectError{Message: err.Error()}
	}

	clientConfig := &ssh.ClientConfig{
		User:            ep.Username,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.cfg.Timeout,
	}
	clientConfig.Auth = c.authMethods(ep, obs)

	address := ep.Address()
	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectError{Message: fmt.Sprintf("failed to connect to %s: %v", address, err)}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		conn.Close()
		return nil, &ConnectError{Message: fmt.Sprintf("failed to connect to %s: %v", address, err)}
	}

	c.logger.Debug("ssh session ready", zap.String("endpoint", ep.String()))
	return &sshSession{client: ssh.NewClient(sshConn, chans, reqs), cfg: c.cfg}, nil
}

func (c *SSHConnector) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if !c.cfg.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := c.cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", path, err)
	}
	return callback, nil
}

// authMethods prefers the supplied password; without one it falls back to
// the agent and the default key locations.
func (c *SSHConnector) authMethods(ep Endpoint, obs Observer) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if ep.Password != "" {
		password := ep.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		)
		return methods
	}

	if agentAuth, err := getSSHAgentAuth(); err == nil {
		methods = append(methods, agentAuth)
	} else {
		c.logger.Debug("ssh agent unavailable", zap.Error(err))
	}

	home, _ := os.UserHomeDir()
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyPath := filepath.Join(home, ".ssh", name)
		if signer, err := loadSSHKey(keyPath); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
			obs.OnLog(LogEvent{Message: "using key " + keyPath, Type: LogInfo})
			break
		}
	}
	return methods
}

// loadSSHKey loads an SSH private key from file
func loadSSHKey(keyPath string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(key)
}

// getSSHAgentAuth tries to get SSH agent authentication
func getSSHAgentAuth() (ssh.AuthMethod, error) {
	authSock := os.Getenv("SSH_AUTH_SOCK")
	if authSock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}
	sshAgent, err := net.Dial("unix", authSock)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(sshAgent).Signers), nil
}

type sshSession struct {
	client *ssh.Client
	cfg    SSHConfig
}

// Files opens the SFTP subchannel with the tuned client options.
func (s *sshSession) Files() (FileChannel, error) {
	var opts []sftp.ClientOption
	// Modern servers accept packets above the 32KB the protocol guarantees.
	opts = append(opts, sftp.MaxPacketUnchecked(s.cfg.MaxPacketSize))
	opts = append(opts, sftp.MaxConcurrentRequestsPerFile(s.cfg.ConcurrentRequests))
	if s.cfg.UseConcurrentIO {
		opts = append(opts, sftp.UseConcurrentReads(true), sftp.UseConcurrentWrites(true))
	}

	client, err := sftp.NewClient(s.client, opts...)
	if err != nil {
		return nil, err
	}
	return &sftpChannel{client: client}, nil
}

func (s *sshSession) Exec(ctx context.Context, command string, stdin []byte) (ExecOutput, error) {
	if err := ctx.Err(); err != nil {
		return ExecOutput{}, err
	}

	session, err := s.client.NewSession()
	if err != nil {
		return ExecOutput{}, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	var in io.WriteCloser
	if stdin != nil {
		in, err = session.StdinPipe()
		if err != nil {
			return ExecOutput{}, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
	}

	if err := session.Start(command); err != nil {
		return ExecOutput{}, fmt.Errorf("failed to start command: %w", err)
	}

	if in != nil {
		// Sent without waiting for a prompt; see privexec.
		if _, err := in.Write(stdin); err != nil {
			return ExecOutput{}, fmt.Errorf("failed to write stdin: %w", err)
		}
		in.Close()
	}

	out := ExecOutput{}
	err = session.Wait()
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitStatus()
			return out, nil
		}
		return out, fmt.Errorf("command did not complete: %w", err)
	}
	return out, nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

// sftpChannel adapts *sftp.Client to FileChannel.
type sftpChannel struct {
	client *sftp.Client
}

func (c *sftpChannel) Stat(path string) (fs.FileInfo, error) {
	return c.client.Stat(path)
}

func (c *sftpChannel) Open(path string) (io.ReadCloser, error) {
	return c.client.Open(path)
}

// WriteFile creates or truncates path and writes data in one call.
func (c *sftpChannel) WriteFile(path string, data []byte) error {
	file, err := c.client.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create/open remote file %s: %w", path, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write file content: %w", err)
	}
	// Some servers only report quota or flush failures on close.
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close remote file %s: %w", path, err)
	}
	return nil
}

func (c *sftpChannel) Remove(path string) error {
	return c.client.Remove(path)
}

func (c *sftpChannel) Close() error {
	return c.client.Close()
}
