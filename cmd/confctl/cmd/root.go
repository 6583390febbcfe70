package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/yzhelezko/confedit/internal/history"
	"github.com/yzhelezko/confedit/internal/localfs"
	"github.com/yzhelezko/confedit/internal/logging"
	"github.com/yzhelezko/confedit/internal/privexec"
	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/status"
)

var (
	host     string
	port     int
	user     string
	askPass  bool
	dataDir  string
	logLevel string
	program  string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "confctl",
	Short: "Read, write and apply configuration files from the command line",
	Long: `confctl drives the confedit engine without the desktop window.

Without --host every command works on this machine. With --host it opens one
SSH session per command. Use --sudo where a command needs privileges; the
password is read with echo disabled.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".config", "confedit")
	if dir, err := os.UserConfigDir(); err == nil {
		defaultDataDir = filepath.Join(dir, "confedit")
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "", "remote host; empty means this machine")
	rootCmd.PersistentFlags().IntVar(&port, "port", 22, "remote SSH port")
	rootCmd.PersistentFlags().StringVar(&user, "user", os.Getenv("USER"), "remote user name")
	rootCmd.PersistentFlags().BoolVar(&askPass, "ask-pass", false, "prompt for the SSH password instead of using keys or the agent")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir, "directory holding confedit.db")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&program, "sudo-program", privexec.DefaultProgram, "privilege escalation wrapper")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print transfer progress and connection log")
}

// services is the engine stack one command runs against.
type services struct {
	logger *zap.Logger
	local  *localfs.Gateway
	engine *remote.Engine
	priv   *privexec.Executor
}

func newServices() *services {
	logger := logging.MustNew(logLevel, "")
	connector := remote.NewSSHConnector(remote.DefaultSSHConfig(), logger)
	priv := privexec.New(logger, privexec.WithProgram(program), privexec.WithConnector(connector))
	return &services{
		logger: logger,
		local:  localfs.NewGateway(priv, logger),
		engine: remote.NewEngine(connector, logger),
		priv:   priv,
	}
}

// endpoint returns the target host, or nil for this machine.
func endpoint(cmd *cobra.Command) (*remote.Endpoint, error) {
	if host == "" {
		return nil, nil
	}
	ep := remote.Endpoint{Host: host, Port: port, Username: user}
	if askPass {
		pw, err := readSecret(cmd, fmt.Sprintf("%s password: ", ep.String()))
		if err != nil {
			return nil, err
		}
		ep.Password = pw
	}
	if err := ep.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote endpoint: %w", err)
	}
	return &ep, nil
}

// readSecret prompts on stderr and reads one line without echo when stdin
// is a terminal.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// observer prints the side channel to stderr in verbose mode.
func observer(cmd *cobra.Command) remote.Observer {
	if !verbose {
		return remote.Discard
	}
	out := cmd.ErrOrStderr()
	return remote.ObserverFuncs{
		Progress: func(ev remote.ProgressEvent) {
			fmt.Fprintf(out, "[%3d%%] %s %s\n", ev.Progress, ev.Status, ev.Speed)
		},
		Log: func(ev remote.LogEvent) {
			fmt.Fprintf(out, "%-7s %s\n", ev.Type, ev.Message)
		},
	}
}

// check turns a failed result into a command error, hinting at --sudo for
// permission failures.
func check(res status.Result, sudo bool) error {
	if res.OK() {
		return nil
	}
	if status.IsPermission(res) && !sudo {
		return fmt.Errorf("%s (retry with --sudo)", res.Msg)
	}
	return errors.New(res.Msg)
}

func openHistory(logger *zap.Logger) (*history.Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return history.Open(filepath.Join(dataDir, "confedit.db"), history.WithLogger(logger))
}
