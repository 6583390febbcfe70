package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yzhelezko/confedit/internal/status"
)

var execSudo bool

var execCmd = &cobra.Command{
	Use:   "exec <command> [args...]",
	Short: "Run a refresh command",
	Long: `Run a command through the shell, locally or on --host.
Example: confctl exec tmux source-file ~/.tmux.conf
         confctl --host web1 exec --sudo systemctl reload nginx`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		ep, err := endpoint(cmd)
		if err != nil {
			return err
		}

		secret := ""
		if execSudo {
			if secret, err = readSecret(cmd, "[sudo] password: "); err != nil {
				return err
			}
		}

		s := newServices()
		defer func() { _ = s.logger.Sync() }()
		ctx := context.Background()

		var res status.Result
		switch {
		case ep != nil && execSudo:
			res = s.priv.ExecRemote(ctx, *ep, command, secret, observer(cmd))
		case ep != nil:
			res = s.engine.Exec(ctx, *ep, command, observer(cmd))
		case execSudo:
			res = s.priv.ExecLocal(ctx, command, secret)
		default:
			res = s.local.Exec(ctx, command)
		}

		fmt.Fprint(cmd.OutOrStdout(), res.Output)
		return check(res, execSudo)
	},
}

func init() {
	execCmd.Flags().BoolVar(&execSudo, "sudo", false, "run through the privilege escalation wrapper")
	// Everything after the command name belongs to the command.
	execCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(execCmd)
}
