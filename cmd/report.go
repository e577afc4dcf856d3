package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/avalia-cli/internal/analysis"
	"github.com/KaramelBytes/avalia-cli/internal/schema"
)

var (
	reportOutDir string
	reportQuiet  bool
)

var reportCmd = &cobra.Command{
	Use:   "report [tables...]",
	Short: "Write a Markdown summary per table (stats and, for fact tables, satisfaction)",
	Long: `Writes <TABLE>.summary.md into --out-dir for each named table, or for every
loaded table when none are named. Existing summaries are kept; new ones get a
__2, __3... suffix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		an := a.Analyzer()

		names := args
		if len(names) == 0 {
			names = an.AvailableTables()
		}
		if len(names) == 0 {
			return fmt.Errorf("no tables loaded from %s", an.Dir())
		}
		if err := os.MkdirAll(reportOutDir, 0o755); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		total := len(names)
		for i, name := range names {
			if !reportQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, name)
			}
			md, err := tableReport(an, name)
			if err != nil {
				return err
			}
			outFile := uniquePath(reportOutDir, name)
			if outFile != filepath.Join(reportOutDir, name+".summary.md") && !reportQuiet {
				fmt.Fprintf(out, "⚠ Detected existing summary, writing to %s to avoid overwrite.\n", filepath.Base(outFile))
			}
			if err := writeFileAtomic(outFile, []byte(md)); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			if !reportQuiet {
				fmt.Fprintf(out, "✓ Wrote %s\n", outFile)
			}
		}
		return nil
	},
}

func tableReport(an *analysis.Analyzer, name string) (string, error) {
	st, err := an.Stats(name)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	if t, ok := an.Registry().Lookup(name); ok && t.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", t.Description)
	}
	b.WriteString(st.Markdown())

	t, ok := an.Registry().Lookup(name)
	if !ok || t.Kind != schema.KindFact {
		return b.String(), nil
	}
	sat, err := an.CalculateSatisfaction(name, "", nil)
	if err != nil {
		return "", err
	}
	b.WriteString("\n[SATISFAÇÃO GERAL]\n")
	b.WriteString(sat.Markdown())
	gap, err := an.KnowledgeGap(name, "", nil)
	if err != nil {
		return "", err
	}
	b.WriteString("\n[DESCONHECIMENTO]\n")
	b.WriteString(gap.Markdown())
	return b.String(), nil
}

// uniquePath returns dir/name.summary.md, or the first free name__N variant.
func uniquePath(dir, name string) string {
	outFile := filepath.Join(dir, name+".summary.md")
	if _, err := os.Stat(outFile); err != nil {
		return outFile
	}
	for idx := 2; ; idx++ {
		cand := filepath.Join(dir, fmt.Sprintf("%s__%d.summary.md", name, idx))
		if _, err := os.Stat(cand); os.IsNotExist(err) {
			return cand
		}
	}
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportOutDir, "out-dir", "reports", "directory for the summaries")
	reportCmd.Flags().BoolVar(&reportQuiet, "quiet", false, "suppress progress output")
}
