package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/avalia-cli/internal/analysis"
	"github.com/KaramelBytes/avalia-cli/internal/tools"
)

var (
	outJSON bool
	outPath string

	flagGroupBy      string
	flagFilterColumn string
	flagFilterValue  string
	flagResponse     string
	flagMetric       string
	flagTopN         int
	flagPreviewRows  int
	flagBottom       bool
	flagColumns      []string
	flagAnalysis     string
)

var satisfactionCmd = &cobra.Command{
	Use:   "satisfaction <table>",
	Short: "Satisfaction (% Concordo over Concordo+Discordo), optionally grouped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, tools.SatisfactionCall{
			Table:        args[0],
			GroupBy:      flagGroupBy,
			FilterColumn: flagFilterColumn,
			FilterValue:  flagFilterValue,
		})
	},
}

var countCmd = &cobra.Command{
	Use:   "count <table>",
	Short: "Count responses, optionally of one type and grouped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, tools.CountCall{
			Table:        args[0],
			GroupBy:      flagGroupBy,
			ResponseType: flagResponse,
			FilterColumn: flagFilterColumn,
			FilterValue:  flagFilterValue,
		})
	},
}

var topCmd = &cobra.Command{
	Use:   "top <table>",
	Short: "Rank groups by a metric (satisfacao, contagem, gap_desconhecimento)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, tools.TopBottomCall{
			Table:   args[0],
			Metric:  flagMetric,
			N:       flagTopN,
			GroupBy: flagGroupBy,
			Bottom:  flagBottom,
		})
	},
}

var gapCmd = &cobra.Command{
	Use:   "gap <table>",
	Short: "Knowledge gap (% Desconheço over all responses), optionally grouped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		var filters analysis.Filters
		if flagFilterColumn != "" && flagFilterValue != "" {
			filters = analysis.Filters{flagFilterColumn: flagFilterValue}
		}
		f, err := a.Analyzer().KnowledgeGap(args[0], flagGroupBy, filters)
		if err != nil {
			return err
		}
		return emitFrame(cmd, f)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <fact_table> <dim_table>",
	Short: "Join a fact table with a dimension, or analyze the joined rows",
	Long: `Without --analysis, prints the joined rows (the first 20 unless --json).
With --analysis satisfacao|contagem, aggregates the joined rows, grouped by --group-by.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagAnalysis != "" {
			return runCall(cmd, tools.JoinAnalyzeCall{
				FactTable:    args[0],
				DimTable:     args[1],
				AnalysisType: flagAnalysis,
				GroupBy:      flagGroupBy,
			})
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		t, err := a.Analyzer().JoinWithDimension(args[0], args[1], flagColumns)
		if err != nil {
			return err
		}
		return emitFrame(cmd, t.Frame())
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <table> <expression>",
	Short: "Filter rows with a restricted expression",
	Long: `Filters rows of a loaded table. Expressions compare columns with quoted strings:

  avalia query FATO_AVCURSOS "RESPOSTA == 'Discordo' and COD_CURSO in ['C1', 'C2']"

Supported: == != < <= > >= in, not in, and/or/not (also & | ~), parentheses and
` + "`backtick quoted`" + ` column names.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, tools.QueryCall{Table: args[0], Expression: args[1]})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <table>",
	Short: "Show the first rows of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, tools.PreviewCall{Table: args[0], N: flagPreviewRows})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <table>",
	Short: "Row/column counts, memory estimate and RESPOSTA distribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, tools.StatsCall{Table: args[0]})
	},
}

func init() {
	addOutputFlags := func(c *cobra.Command) {
		c.Flags().BoolVar(&outJSON, "json", false, "print the full result as JSON")
		c.Flags().StringVarP(&outPath, "output", "o", "", "also write the result to this file")
	}
	addFilterFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&flagFilterColumn, "filter-column", "", "column to filter on")
		c.Flags().StringVar(&flagFilterValue, "filter-value", "", "value the filter column must equal")
	}

	satisfactionCmd.Flags().StringVarP(&flagGroupBy, "group-by", "g", "", "column to group by (e.g. COD_CURSO)")
	addFilterFlags(satisfactionCmd)

	countCmd.Flags().StringVarP(&flagGroupBy, "group-by", "g", "", "column to group by")
	countCmd.Flags().StringVarP(&flagResponse, "response", "r", "", "Concordo, Discordo or Desconheço")
	addFilterFlags(countCmd)

	topCmd.Flags().StringVarP(&flagMetric, "metric", "m", analysis.MetricSatisfaction, "satisfacao, contagem or gap_desconhecimento")
	topCmd.Flags().IntVarP(&flagTopN, "limit", "n", 10, "number of groups")
	topCmd.Flags().StringVarP(&flagGroupBy, "group-by", "g", "", "column to group by")
	topCmd.Flags().BoolVar(&flagBottom, "bottom", false, "lowest values instead of highest")
	_ = topCmd.MarkFlagRequired("group-by")

	gapCmd.Flags().StringVarP(&flagGroupBy, "group-by", "g", "", "column to group by")
	addFilterFlags(gapCmd)

	joinCmd.Flags().StringSliceVar(&flagColumns, "columns", nil, "dimension columns to keep (default all)")
	joinCmd.Flags().StringVar(&flagAnalysis, "analysis", "", "satisfacao or contagem")
	joinCmd.Flags().StringVarP(&flagGroupBy, "group-by", "g", "", "column of the joined rows to group by")

	previewCmd.Flags().IntVarP(&flagPreviewRows, "rows", "n", 5, "number of rows")

	for _, c := range []*cobra.Command{satisfactionCmd, countCmd, topCmd, gapCmd, joinCmd, queryCmd, previewCmd, statsCmd} {
		addOutputFlags(c)
		rootCmd.AddCommand(c)
	}
}

func outputOpts(cmd *cobra.Command) outputOptions {
	return outputOptions{JSON: outJSON, Path: outPath, Writer: cmd.OutOrStdout()}
}

// runCall prints a tool result. Text mode goes through the tool adapter, so
// the CLI shows exactly what the agent sees; --json prints the full frame.
func runCall(cmd *cobra.Command, call tools.Call) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	opts := outputOpts(cmd)
	if !opts.JSON {
		out := a.Adapter().Run(cmd.Context(), call)
		if strings.HasPrefix(out, "Erro") {
			return errors.New(out)
		}
		return emit(out, nil, opts)
	}
	if sc, ok := call.(tools.StatsCall); ok {
		st, err := a.Analyzer().Stats(sc.Table)
		if err != nil {
			return err
		}
		return emit("", st, opts)
	}
	f, err := a.Adapter().Compute(call)
	if err != nil {
		return err
	}
	return emit("", f, opts)
}

// emitFrame prints a frame directly from the analyzer, truncated in text mode.
func emitFrame(cmd *cobra.Command, f *analysis.Frame) error {
	opts := outputOpts(cmd)
	if opts.JSON {
		return emit("", f, opts)
	}
	text := "Resultados:\n" + f.Markdown()
	if f.Len() > tools.MaxRows {
		text = fmt.Sprintf("Resultados (top %d de %d):\n%s", tools.MaxRows, f.Len(), f.Head(tools.MaxRows).Markdown())
	}
	return emit(text, nil, opts)
}
