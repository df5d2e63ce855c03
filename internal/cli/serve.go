// internal/cli/serve.go
package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scrape-studio/studio/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket protocol server for interactive sessions",
	Example: `  # Serve on the default address
  studio serve

  # Serve on a custom address with a visible browser
  studio serve --listen 0.0.0.0:9000 --headful`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)

		pool, err := a.EnsurePool(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info().Str("addr", a.Config.ListenAddr).Msg("Starting protocol server")
		return server.New(pool).Run(ctx, a.Config.ListenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
