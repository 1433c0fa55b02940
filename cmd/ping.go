// cmd/ping.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/vpswatch/internal/config"
	"github.com/aceteam-ai/vpswatch/internal/latency"
	"github.com/aceteam-ai/vpswatch/internal/tui"
)

var (
	pingCount      int
	pingTargets    string
	pingPrivileged bool
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure latency from this machine to the carrier reference hosts",
	Long: `Runs the same latency probe the agent reports: ICMP echo to one reference
host on each of China Telecom (CT), China Unicom (CU) and China Mobile (CM).
Targets come from --targets, then $LATENCY_TARGETS, then the built-in list.`,
	Example: `  vpswatch ping
  vpswatch ping -c 5
  vpswatch ping --targets "CT=1.2.3.4,CU=5.6.7.8"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyNoColor()

		raw := pingTargets
		if raw == "" {
			config.LoadDotEnv()
			raw = getEnvOrDefault("LATENCY_TARGETS", "")
		}
		targets, err := latency.ParseTargets(raw)
		if err != nil {
			return err
		}

		prober := latency.NewProber(latency.ProberConfig{
			Targets:    targets,
			Count:      pingCount,
			Privileged: pingPrivileged,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		fmt.Printf("Probing %d targets (%d echoes each)...\n", len(targets), max(pingCount, 1))
		results := prober.Probe(ctx)

		for _, t := range prober.Targets() {
			ms := results[t.Code]
			grade := latency.GradeOf(ms)
			fmt.Printf("  %s  %s %s  %s\n",
				tui.Pad(t.Code, 3),
				tui.Pad(t.Host, 18),
				gradeColor(grade).Sprint(tui.Pad(tui.LatencyText(ms, true), 8)),
				mutedColor.Sprint(string(grade)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)

	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 3, "Number of echo requests per target")
	pingCmd.Flags().StringVar(&pingTargets, "targets", "", "Targets as CODE=host,... (default: $LATENCY_TARGETS or built-in)")
	pingCmd.Flags().BoolVar(&pingPrivileged, "privileged", false, "Use raw ICMP sockets (requires root)")
	pingCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable color output")
}
