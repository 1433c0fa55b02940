// cmd/top.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/vpswatch/internal/api"
	"github.com/aceteam-ai/vpswatch/internal/tui"
	"github.com/aceteam-ai/vpswatch/internal/tui/dashboard"
)

var topInterval time.Duration

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live terminal dashboard of the fleet",
	Long: `Opens a full-screen dashboard that refreshes the fleet view on the
backend's refresh interval.

Keys: r refresh, a toggle auto-refresh, s cycle sort order, q quit.`,
	Example: `  vpswatch top
  vpswatch top --server https://status.example.com --interval 5s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tui.IsTTY() {
			return fmt.Errorf("top needs an interactive terminal; use 'vpswatch nodes' instead")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client := api.NewClient(serverURL, 10*time.Second)
		Debug("dashboard polling %s", serverURL)

		err := dashboard.RunTviewDashboard(ctx, dashboard.Config{
			Fetch:    client.Nodes,
			Interval: topInterval,
			Title:    serverURL,
			Version:  Version,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(topCmd)

	topCmd.Flags().DurationVar(&topInterval, "interval", 0, "Refresh interval (default: the backend's)")
}
