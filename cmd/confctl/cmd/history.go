package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the saved versions of local files",
}

var historyListCmd = &cobra.Command{
	Use:   "list <path>",
	Short: "List the saved versions of a file, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newServices()
		store, err := openHistory(s.logger)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.GetFileHistory(args[0])
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No history found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSAVED\tSIZE")
		for _, r := range records {
			saved := time.UnixMilli(r.Timestamp).Format(time.RFC3339)
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.ID, saved, r.SizeBytes)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one saved version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newServices()
		store, err := openHistory(s.logger)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), rec.Content)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear [path]",
	Short: "Delete the saved versions of one file, or of every file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newServices()
		store, err := openHistory(s.logger)
		if err != nil {
			return err
		}
		defer store.Close()

		var n int64
		if len(args) == 1 {
			n, err = store.DeleteFileHistory(args[0])
		} else {
			n, err = store.ClearAllHistory()
		}
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %d record(s) deleted\n", n)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
