// Package dashboard implements the interactive fleet view behind
// `vpswatch top`.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/aceteam-ai/vpswatch/internal/api"
	"github.com/aceteam-ai/vpswatch/internal/latency"
	"github.com/aceteam-ai/vpswatch/internal/status"
	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

// FetchFunc loads the current node list.
type FetchFunc func(ctx context.Context) (*api.NodesResponse, error)

// Config holds configuration for the dashboard.
type Config struct {
	Fetch FetchFunc

	// Interval between refreshes; the backend's advertised refresh
	// interval is used when zero
	Interval time.Duration

	// Title shown in the header, usually the backend URL
	Title   string
	Version string
}

// TviewDashboard is a full-screen, auto-refreshing fleet table.
type TviewDashboard struct {
	cfg Config
	app *tview.Application

	mu          sync.Mutex
	data        *api.NodesResponse
	lastErr     error
	lastUpdate  time.Time
	autoRefresh bool
	sortBy      sortKey

	table     *tview.Table
	summary   *tview.TextView
	statusBar *tview.TextView
	stopOnce  sync.Once
	stopChan  chan struct{}
}

type sortKey int

const (
	sortNone sortKey = iota
	sortName
	sortCPU
	sortTraffic
)

func (k sortKey) String() string {
	switch k {
	case sortName:
		return "name"
	case sortCPU:
		return "cpu"
	case sortTraffic:
		return "traffic"
	default:
		return "config"
	}
}

// NewTviewDashboard creates a dashboard.
func NewTviewDashboard(cfg Config) *TviewDashboard {
	return &TviewDashboard{
		cfg:         cfg,
		autoRefresh: true,
		stopChan:    make(chan struct{}),
	}
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func (d *TviewDashboard) Run(ctx context.Context) error {
	d.app = tview.NewApplication()
	d.buildUI()
	d.refresh(ctx)

	go d.autoRefreshLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			d.stop()
		case <-d.stopChan:
		}
	}()

	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			d.stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				d.stop()
				return nil
			case 'r', 'R':
				go func() {
					d.refresh(ctx)
					d.app.QueueUpdateDraw(d.updateUI)
				}()
				return nil
			case 'a', 'A':
				d.mu.Lock()
				d.autoRefresh = !d.autoRefresh
				d.mu.Unlock()
				d.updateStatusBar()
				return nil
			case 's', 'S':
				d.mu.Lock()
				d.sortBy = (d.sortBy + 1) % 4
				d.mu.Unlock()
				d.updateUI()
				return nil
			}
		}
		return event
	})

	d.updateUI()
	return d.app.Run()
}

func (d *TviewDashboard) stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
		d.app.Stop()
	})
}

func (d *TviewDashboard) buildUI() {
	header := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	header.SetText(fmt.Sprintf("\n[::b]VPS FLEET[::-] [gray]%s %s[-]", d.cfg.Title, d.cfg.Version))

	d.summary = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	d.table = tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)
	d.table.SetBorder(true).SetTitle(" Nodes ")

	d.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(d.summary, 1, 0, false).
		AddItem(d.table, 0, 1, true).
		AddItem(d.statusBar, 1, 0, false)

	d.app.SetRoot(root, true)
}

func (d *TviewDashboard) updateUI() {
	d.mu.Lock()
	data, lastErr, key := d.data, d.lastErr, d.sortBy
	d.mu.Unlock()

	var nodes []status.NodeView
	if data != nil {
		nodes = sortNodes(data.Nodes, key)
	}
	d.summary.SetText(summaryLine(data, lastErr))

	d.table.Clear()
	for i, h := range columns {
		d.table.SetCell(0, i, tview.NewTableCell(" [yellow::b]"+h+"[-:-:-]").
			SetSelectable(false).
			SetAlign(tview.AlignLeft))
	}
	if len(nodes) == 0 {
		d.table.SetCell(1, 0, tview.NewTableCell(" [gray]No nodes reporting[-]").SetSelectable(false))
	}
	for i, n := range nodes {
		for col, text := range rowCells(n) {
			d.table.SetCell(i+1, col, tview.NewTableCell(text).SetExpansion(expansion(col)))
		}
	}
	d.updateStatusBar()
}

func (d *TviewDashboard) updateStatusBar() {
	d.mu.Lock()
	auto, last, key := d.autoRefresh, d.lastUpdate, d.sortBy
	d.mu.Unlock()

	autoStr := "[red]off[-]"
	if auto {
		autoStr = "[green]on[-]"
	}
	lastUpdate := "never"
	if !last.IsZero() {
		lastUpdate = last.Format("15:04:05")
	}

	d.statusBar.SetText(fmt.Sprintf(
		" [yellow][r][-]efresh  [yellow][a][-]uto-refresh: %s  [yellow][s][-]ort: %s  [yellow][q][-]uit  |  Last update: [gray]%s[-]",
		autoStr, key, lastUpdate,
	))
}

func (d *TviewDashboard) refresh(ctx context.Context) {
	if d.cfg.Fetch == nil {
		return
	}
	data, err := d.cfg.Fetch(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = err
	if err == nil {
		d.data = data
		d.lastUpdate = time.Now()
	}
}

func (d *TviewDashboard) interval() time.Duration {
	if d.cfg.Interval > 0 {
		return d.cfg.Interval
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.data != nil && d.data.RefreshInterval > 0 {
		return time.Duration(d.data.RefreshInterval) * time.Millisecond
	}
	return 2 * time.Second
}

func (d *TviewDashboard) autoRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(d.interval())
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			auto := d.autoRefresh
			d.mu.Unlock()
			if auto {
				d.refresh(ctx)
				d.app.QueueUpdateDraw(d.updateUI)
			}
		}
	}
}

// RunTviewDashboard runs the dashboard until the user quits.
func RunTviewDashboard(ctx context.Context, cfg Config) error {
	return NewTviewDashboard(cfg).Run(ctx)
}

var columns = []string{"", "NAME", "LOCATION", "CPU", "MEM", "DISK", "NET ↑/↓", "TRAFFIC", "CT/CU/CM", "UPTIME"}

func expansion(col int) int {
	if col == 1 || col == 2 {
		return 1
	}
	return 0
}

func summaryLine(data *api.NodesResponse, err error) string {
	if data == nil {
		if err != nil {
			return fmt.Sprintf("[red]%v[-]", err)
		}
		return "[gray]loading...[-]"
	}
	online := 0
	for _, n := range data.Nodes {
		if n.Status == status.StateOnline {
			online++
		}
	}
	line := fmt.Sprintf("[green]%d online[-]  [red]%d offline[-]  [gray]%d total[-]", online, data.Count-online, data.Count)
	if data.Message != "" {
		line += "  [yellow]" + tview.Escape(data.Message) + "[-]"
	}
	if err != nil {
		line += "  [red](stale: " + tview.Escape(err.Error()) + ")[-]"
	}
	return line
}

// rowCells renders one node as tview-tagged cells in column order.
func rowCells(n status.NodeView) []string {
	dot := "[green]●[-]"
	if n.Status != status.StateOnline {
		dot = "[red]●[-]"
	}
	name := tview.Escape(n.Name)
	if n.Status != status.StateOnline {
		name = "[gray]" + name + "[-]"
	}

	return []string{
		" " + dot,
		name,
		tview.Escape(fmt.Sprintf("%s %s", n.CountryCode, n.Location)),
		percentCell(n.CPU.Usage),
		percentCell(n.Memory.Usage),
		percentCell(n.Disk.Usage),
		fmt.Sprintf("%s / %s", traffic.FormatRate(n.Network.CurrentUpload), traffic.FormatRate(n.Network.CurrentDownload)),
		trafficCell(n.Network),
		latencyCell(n.Latency),
		traffic.FormatUptime(n.Uptime),
	}
}

func percentCell(p float64) string {
	return fmt.Sprintf("[%s]%5.1f%%[-]", levelColor(p), p)
}

func levelColor(p float64) string {
	switch {
	case p >= 90:
		return "red"
	case p >= 75:
		return "yellow"
	default:
		return "green"
	}
}

func trafficCell(n status.Network) string {
	used := traffic.FormatBytes(n.CycleUsed)
	if n.MonthlyTotal == 0 {
		return used
	}
	pct := float64(n.CycleUsed) / float64(n.MonthlyTotal) * 100
	return fmt.Sprintf("[%s]%s[-] / %s", levelColor(pct), used, traffic.FormatBytes(n.MonthlyTotal))
}

var latencyColors = map[latency.Grade]string{
	latency.GradeGood:    "green",
	latency.GradeMedium:  "yellow",
	latency.GradePoor:    "red",
	latency.GradeOffline: "gray",
}

func latencyCell(l status.Latency) string {
	parts := make([]string, 0, 3)
	for _, code := range []string{"CT", "CU", "CM"} {
		ms, ok := l[code]
		if !ok || ms < 0 {
			parts = append(parts, "[gray]-[-]")
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]%.0f[-]", latencyColors[latency.GradeOf(ms)], ms))
	}
	return strings.Join(parts, "/")
}

// sortNodes returns a sorted copy; sortNone keeps the backend order.
func sortNodes(nodes []status.NodeView, key sortKey) []status.NodeView {
	out := append([]status.NodeView(nil), nodes...)
	switch key {
	case sortName:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	case sortCPU:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CPU.Usage > out[j].CPU.Usage })
	case sortTraffic:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Network.CycleUsed > out[j].Network.CycleUsed })
	}
	return out
}
