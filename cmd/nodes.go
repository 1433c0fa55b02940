// cmd/nodes.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aceteam-ai/vpswatch/internal/api"
	"github.com/aceteam-ai/vpswatch/internal/latency"
	"github.com/aceteam-ai/vpswatch/internal/status"
	"github.com/aceteam-ai/vpswatch/internal/traffic"
	"github.com/aceteam-ai/vpswatch/internal/tui"
)

var nodesJSON bool

var nodesCmd = &cobra.Command{
	Use:     "nodes",
	Aliases: []string{"ls", "list"},
	Short:   "List the fleet as seen by the backend",
	Long: `Fetches the fleet view from the backend and prints one line per node:
status, location, resource usage, traffic used this cycle against the
monthly quota, carrier latency and uptime.`,
	Example: `  vpswatch nodes
  vpswatch nodes --server https://status.example.com
  vpswatch nodes --json | jq '.nodes[].name'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyNoColor()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		Debug("fetching %s/api/nodes", serverURL)
		resp, err := api.NewClient(serverURL, 10*time.Second).Nodes(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch nodes from %s: %w", serverURL, err)
		}

		if nodesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		renderNodes(os.Stdout, resp, time.Now())
		return nil
	},
}

// Column widths in display cells.
const (
	colName     = 18
	colLocation = 16
	colUsage    = 6
	colTraffic  = 22
	colCycle    = 10
	colLatency  = 14
)

func renderNodes(w io.Writer, resp *api.NodesResponse, now time.Time) {
	online := 0
	for _, n := range resp.Nodes {
		if n.Status == status.StateOnline {
			online++
		}
	}
	headerColor.Fprintf(w, "VPS FLEET")
	fmt.Fprintf(w, "  %s  %s  %s\n",
		goodColor.Sprintf("%d online", online),
		badColor.Sprintf("%d offline", resp.Count-online),
		mutedColor.Sprintf("%d total", resp.Count))
	if resp.Message != "" {
		warnColor.Fprintf(w, "⚠️  %s\n", resp.Message)
	}
	fmt.Fprintln(w)

	if len(resp.Nodes) == 0 {
		mutedColor.Fprintln(w, "No nodes reporting.")
		return
	}

	header := "  " + strings.Join([]string{
		tui.Pad("NAME", colName),
		tui.Pad("LOCATION", colLocation),
		tui.Pad("CPU", colUsage),
		tui.Pad("MEM", colUsage),
		tui.Pad("DISK", colUsage),
		tui.Pad("TRAFFIC", colTraffic),
		tui.Pad("RESETS", colCycle),
		tui.Pad("CT/CU/CM", colLatency),
		"UPTIME",
	}, " ")
	headerColor.Fprintln(w, header)

	for _, n := range resp.Nodes {
		fmt.Fprintln(w, nodeLine(n, now))
	}
}

// nodeLine pads every cell before colouring it so escape sequences never
// disturb the alignment.
func nodeLine(n status.NodeView, now time.Time) string {
	dot := goodColor.Sprint("●")
	name := tui.Pad(n.Name, colName)
	if n.Status != status.StateOnline {
		dot = badColor.Sprint("●")
		name = mutedColor.Sprint(name)
	}

	uptime := traffic.FormatUptime(n.Uptime)
	if n.Status != status.StateOnline {
		uptime = mutedColor.Sprint(lastSeen(n.LastUpdate, now))
	}

	return dot + " " + strings.Join([]string{
		name,
		tui.Pad(n.CountryCode+" "+n.Location, colLocation),
		usageCell(n.CPU.Usage),
		usageCell(n.Memory.Usage),
		usageCell(n.Disk.Usage),
		trafficCell(n.Network),
		tui.Pad(cycleEnd(n.Network.ResetDay, now), colCycle),
		latencyCell(n.Latency),
		uptime,
	}, " ")
}

func levelColor(percent float64) *color.Color {
	switch {
	case percent >= tui.UsageCritical:
		return badColor
	case percent >= tui.UsageWarning:
		return warnColor
	default:
		return goodColor
	}
}

func usageCell(percent float64) string {
	return levelColor(percent).Sprint(tui.Pad(fmt.Sprintf("%.0f%%", percent), colUsage))
}

func trafficCell(n status.Network) string {
	used := traffic.FormatBytes(n.CycleUsed)
	if n.MonthlyTotal == 0 {
		return tui.Pad(used, colTraffic)
	}
	pct := float64(n.CycleUsed) / float64(n.MonthlyTotal) * 100
	text := fmt.Sprintf("%s / %s", used, traffic.FormatBytes(n.MonthlyTotal))
	return levelColor(pct).Sprint(tui.Pad(text, colTraffic))
}

// cycleEnd is the last day of the node's current traffic cycle.
func cycleEnd(resetDay int, now time.Time) string {
	if !traffic.ValidResetDay(resetDay) {
		resetDay = traffic.DefaultResetDay
	}
	_, end := traffic.Window(resetDay, now)
	return end.Format("Jan 02")
}

func latencyCell(l status.Latency) string {
	var plain, colored []string
	for _, code := range []string{"CT", "CU", "CM"} {
		ms, ok := l[code]
		text := tui.LatencyText(ms, ok)
		plain = append(plain, text)
		if !ok {
			colored = append(colored, mutedColor.Sprint(text))
			continue
		}
		colored = append(colored, gradeColor(latency.GradeOf(ms)).Sprint(text))
	}
	// pad using the plain width, then append the coloured text
	width := len(strings.Join(plain, "/"))
	pad := ""
	if width < colLatency {
		pad = strings.Repeat(" ", colLatency-width)
	}
	return strings.Join(colored, "/") + pad
}

func gradeColor(g latency.Grade) *color.Color {
	switch g {
	case latency.GradeGood:
		return goodColor
	case latency.GradeMedium:
		return warnColor
	case latency.GradePoor:
		return badColor
	default:
		return mutedColor
	}
}

func lastSeen(lastUpdate int64, now time.Time) string {
	if lastUpdate == 0 {
		return "never seen"
	}
	age := now.Sub(time.UnixMilli(lastUpdate)).Round(time.Second)
	return fmt.Sprintf("seen %v ago", age)
}

func init() {
	rootCmd.AddCommand(nodesCmd)

	nodesCmd.Flags().BoolVar(&nodesJSON, "json", false, "Print the raw JSON response")
	nodesCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable color output")
}
