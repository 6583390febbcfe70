package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/status"
)

var putSudo bool

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that the remote host accepts an SSH session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, err := endpoint(cmd)
		if err != nil {
			return err
		}
		if ep == nil {
			return fmt.Errorf("--host is required")
		}

		s := newServices()
		defer func() { _ = s.logger.Sync() }()
		res := s.engine.TestConnection(context.Background(), *ep, observer(cmd))
		if err := check(res, true); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", res.Msg)
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, err := endpoint(cmd)
		if err != nil {
			return err
		}

		s := newServices()
		defer func() { _ = s.logger.Sync() }()
		var res status.Result
		if ep != nil {
			res = s.engine.Read(context.Background(), *ep, args[0], observer(cmd))
		} else {
			res = s.local.ReadContent(args[0])
		}
		if err := check(res, true); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), res.Content)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <path> [source]",
	Short: "Overwrite a configuration file",
	Long: `Overwrite a configuration file with the content of source, or stdin when
source is omitted or "-". Local writes are kept in the confedit history.
Example: confctl put ~/.tmux.conf tmux.conf
         confctl --host web1 put --sudo /etc/nginx/nginx.conf - < nginx.conf`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		content, err := readSource(cmd, args[1:])
		if err != nil {
			return err
		}
		ep, err := endpoint(cmd)
		if err != nil {
			return err
		}

		s := newServices()
		defer func() { _ = s.logger.Sync() }()
		ctx := context.Background()

		var res status.Result
		switch {
		case ep != nil && putSudo:
			secret, err := readSecret(cmd, "[sudo] password: ")
			if err != nil {
				return err
			}
			res = s.priv.WriteRemote(ctx, *ep, target, content, secret, observer(cmd))
		case ep != nil:
			res = s.engine.Write(ctx, *ep, target, content, observer(cmd))
		case putSudo:
			secret, err := readSecret(cmd, "[sudo] password: ")
			if err != nil {
				return err
			}
			res = s.local.WritePrivileged(ctx, target, content, secret)
		default:
			if res = s.local.ProbeWritable(target); res.OK() {
				res = s.local.WriteContent(target, content)
			}
		}
		if err := check(res, putSudo); err != nil {
			return err
		}

		if ep == nil {
			recordHistory(s.logger, target, content)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %s\n", res.Msg, target)
		return nil
	},
}

func readSource(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	return string(data), nil
}

// recordHistory snapshots a local write. A failure only warns; the file is
// already written.
func recordHistory(logger *zap.Logger, target, content string) {
	store, err := openHistory(logger)
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer store.Close()
	if _, err := store.SaveHistory(target, filepath.Base(target), content); err != nil {
		logger.Warn("history snapshot failed", zap.String("file", target), zap.Error(err))
	}
}

func init() {
	putCmd.Flags().BoolVar(&putSudo, "sudo", false, "write through the privilege escalation wrapper")

	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(putCmd)
}
