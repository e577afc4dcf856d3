package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/avalia-cli/internal/server"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis tools and the assistant over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if serveWatch || cfg.Watch {
			err := a.Watch(ctx, 0, func(err error) {
				if err == nil {
					logger.Info("data reloaded", zap.Strings("tables", a.Analyzer().AvailableTables()))
				}
			})
			if err != nil {
				return err
			}
		}
		addr := cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Serving %d tables on %s\n", len(a.Analyzer().AvailableTables()), addr)
		srv := server.New(a, server.WithCORSOrigins(cfg.CORSOrigins))
		return srv.Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload when CSV files in the data dir change")
	rootCmd.AddCommand(serveCmd)
}
