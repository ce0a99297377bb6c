package cmd

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"calbrief/internal/app"
)

// serveCmd runs the local HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API",
	Long: `Run the local JSON API on server.host:server.port (127.0.0.1:8765 by
default) until interrupted. Desktop front-ends use it to sign in, read
events and fetch messages. Prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := loadApplication(cmd, app.ModeFull)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Serve(cmd.Context(), func(addr net.Addr) {
		fmt.Fprintf(cmd.OutOrStdout(), "calbrief API listening on http://%s\n", addr)
	})
}
