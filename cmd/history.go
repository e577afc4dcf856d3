package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent tool invocations (requires history_db)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		st := a.History()
		if st == nil {
			return errors.New("history is disabled; set history_db (avalia config set history_db ~/.avalia/history.db)")
		}
		entries, err := st.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if outJSON {
			return emit("", entries, outputOpts(cmd))
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tool invocations recorded yet.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tTOOL\tOK\tDURATION\tARGS")
		for _, e := range entries {
			ok := "✓"
			if !e.Success {
				ok = "✗"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", humanize.Time(e.CreatedAt), e.Tool, ok, e.Duration, e.Args)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries")
	historyCmd.Flags().BoolVar(&outJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(historyCmd)
}
