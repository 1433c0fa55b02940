// cmd/agent.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/vpswatch/internal/config"
	"github.com/aceteam-ai/vpswatch/internal/heartbeat"
	"github.com/aceteam-ai/vpswatch/internal/latency"
	"github.com/aceteam-ai/vpswatch/internal/publicip"
	"github.com/aceteam-ai/vpswatch/internal/status"
	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

var (
	agentToken      string
	agentNodeID     string
	agentInterval   time.Duration
	agentOnce       bool
	agentNoLatency  bool
	agentPrivileged bool
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the reporting agent on this node",
	Long: `This is a long-running command that measures this machine (CPU, memory,
disk, network counters, public IP and carrier latency) and posts a report to
the vpswatch backend every interval. It should typically be run as a
background service.`,
	Example: `  SERVER_URL=https://status.example.com API_TOKEN=secret vpswatch agent

  # Send one report and print it
  vpswatch agent --once`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAgent()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if cmd.Flags().Changed("server") {
			cfg.ServerURL = serverURL
		}
		if cmd.Flags().Changed("token") {
			cfg.Token = agentToken
		}
		if cmd.Flags().Changed("node-id") {
			cfg.NodeID = agentNodeID
		}
		if cmd.Flags().Changed("interval") {
			cfg.Interval = agentInterval
		}
		return runAgent(cfg)
	},
}

func newAgentCollector(cfg *config.Agent) (*status.Collector, error) {
	resolver := publicip.NewResolver(publicip.Config{STUNServers: cfg.STUNServers})
	collectorCfg := status.CollectorConfig{
		Protocol:   cfg.Protocol,
		ExpireDate: cfg.ExpireDate,
		PublicIP:   resolver.IPv4,
		IPv6:       resolver.IPv6,
	}
	if !agentNoLatency {
		targets, err := latency.ParseTargets(cfg.LatencyTargets)
		if err != nil {
			return nil, err
		}
		prober := latency.NewProber(latency.ProberConfig{
			Targets:    targets,
			Privileged: agentPrivileged,
		})
		collectorCfg.Latency = prober.Probe
	}
	return status.NewCollector(collectorCfg), nil
}

func runAgent(cfg *config.Agent) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, err := newAgentCollector(cfg)
	if err != nil {
		return err
	}
	// The first network rate needs a previous sample.
	if err := collector.Prime(ctx); err != nil {
		Debug("priming network counters: %v", err)
	}

	client := heartbeat.NewClient(heartbeat.ClientConfig{
		BaseURL:         cfg.ServerURL,
		NodeID:          cfg.NodeID,
		Name:            cfg.Name,
		Location:        cfg.Location,
		CountryCode:     cfg.CountryCode,
		TrafficResetDay: cfg.TrafficResetDay,
		MonthlyTotal:    cfg.MonthlyTotal,
		Interval:        cfg.Interval,
		APIToken:        cfg.Token,
		LogFn:           logFn,
	}, collector)

	if agentOnce {
		return reportOnce(ctx, client)
	}

	fmt.Println("--- 🚀 Starting vpswatch agent ---")
	fmt.Printf("   - Node ID: %s\n", cfg.NodeID)
	fmt.Printf("   - Endpoint: %s\n", client.Endpoint())
	fmt.Printf("   - Interval: %v\n", client.Interval())
	if cfg.MonthlyTotal > 0 {
		fmt.Printf("   - Monthly quota: %s (resets on day %d)\n", traffic.FormatBytes(cfg.MonthlyTotal), cfg.TrafficResetDay)
	}
	if cfg.Token == "" {
		warnColor.Println("   - ⚠️ API_TOKEN is not set; the backend will reject reports")
	}
	fmt.Println("   - ✅ Agent started. Reporting...")

	err = client.Start(ctx)

	fmt.Println("\n--- 🛑 Shutting down agent ---")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("   - ✅ Agent stopped.")
	return nil
}

func reportOnce(ctx context.Context, client *heartbeat.Client) error {
	rep, err := client.Report(ctx)
	if err != nil {
		return err
	}
	if err := client.Send(ctx, rep); err != nil {
		badColor.Fprintf(os.Stderr, "Report failed: %v\n", err)
		return err
	}

	goodColor.Printf("Report accepted by %s\n", client.Endpoint())
	fmt.Printf("  %-10s %s\n", "Node:", rep.NodeID)
	fmt.Printf("  %-10s %s\n", "IP:", orDash(rep.IPAddress))
	fmt.Printf("  %-10s %s\n", "OS:", rep.OS)
	fmt.Printf("  %-10s %.1f%% of %d cores\n", "CPU:", rep.CPU.Usage, rep.CPU.Cores)
	fmt.Printf("  %-10s %s / %s\n", "Memory:", traffic.FormatBytes(rep.Memory.Used), traffic.FormatBytes(rep.Memory.Total))
	fmt.Printf("  %-10s %s / %s\n", "Disk:", traffic.FormatBytes(rep.Disk.Used), traffic.FormatBytes(rep.Disk.Total))
	fmt.Printf("  %-10s ↑ %s  ↓ %s\n", "Counters:", traffic.FormatBytes(rep.Network.TotalUpload), traffic.FormatBytes(rep.Network.TotalDownload))
	if g, ok := client.Geo(); ok {
		fmt.Printf("  %-10s %s, %s (%s)\n", "Geo:", g.Name, g.Location, g.CountryCode)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().StringVar(&agentToken, "token", "", "Shared API token (default: $API_TOKEN)")
	agentCmd.Flags().StringVar(&agentNodeID, "node-id", "", "Node ID (default: $NODE_ID or derived from the machine id)")
	agentCmd.Flags().DurationVar(&agentInterval, "interval", 0, "Time between reports (default: $INTERVAL or 5s)")
	agentCmd.Flags().BoolVar(&agentOnce, "once", false, "Send a single report, print it and exit")
	agentCmd.Flags().BoolVar(&agentNoLatency, "no-latency", false, "Skip carrier latency probes")
	agentCmd.Flags().BoolVar(&agentPrivileged, "privileged", false, "Use raw ICMP sockets for latency probes (requires root)")
}
