// cmd/serve.go
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

	"github.com/aceteam-ai/vpswatch/internal/api"
	"github.com/aceteam-ai/vpswatch/internal/config"
	"github.com/aceteam-ai/vpswatch/internal/fleet"
	"github.com/aceteam-ai/vpswatch/internal/geo"
	"github.com/aceteam-ai/vpswatch/internal/store"
	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

var (
	serveAddr        string
	serveStore       string
	serveServersFile string
	serveStaticDir   string
	serveNoGeo       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vpswatch backend",
	Long: `Starts the HTTP backend that accepts agent reports and serves the fleet
view. Settings come from the environment (and an optional .env file); flags
override them.

Endpoints:
  POST /api/report   agent reports (X-API-Token required)
  GET  /api/nodes    fleet view
  GET  /api/ws       live fleet view over websocket
  GET  /health       backend and store health`,
	Example: `  # In-memory store on :3000
  API_TOKEN=secret vpswatch serve

  # Redis-backed, with a YAML server list
  vpswatch serve --store redis://localhost:6379/0 --servers-file servers.yaml

  # Single-file persistence
  vpswatch serve --store sqlite:///var/lib/vpswatch/state.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr = serveAddr
		}
		if cmd.Flags().Changed("store") {
			cfg.StoreURL = serveStore
		}
		if cmd.Flags().Changed("servers-file") {
			cfg.ServersFile = serveServersFile
		}
		if cmd.Flags().Changed("static") {
			cfg.StaticDir = serveStaticDir
		}
		return runServe(cfg)
	},
}

func runServe(cfg *config.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("--- Starting vpswatch backend ---")

	fleetCfg := fleet.ParseServers(cfg.Servers, newLogger("fleet"))
	if cfg.ServersFile != "" {
		fromFile, err := fleet.LoadFile(cfg.ServersFile, newLogger("fleet"))
		if err != nil {
			return err
		}
		fleetCfg = fleetCfg.Extend(fromFile)
	}
	fmt.Printf("   - Configured servers: %d\n", fleetCfg.Len())

	// A store that cannot be opened is not fatal: the API keeps serving
	// configured placeholders and rejects reports until restarted.
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := store.Open(openCtx, cfg.StoreURL)
	cancel()
	if err != nil {
		badColor.Fprintf(os.Stderr, "   - ⚠️ Store unavailable: %v\n", err)
		st = nil
	} else {
		defer st.Close()
		fmt.Printf("   - Store: %s\n", store.Backend(st))
		if sq, ok := st.(*store.SQLite); ok {
			go sq.StartPurger(ctx, 5*time.Minute, logFn)
		}
	}

	srvCfg := api.Config{
		Addr:            cfg.Addr,
		Fleet:           fleetCfg,
		Token:           cfg.Token,
		SnapshotTTL:     cfg.SnapshotTTL,
		RefreshInterval: cfg.RefreshInterval,
		ReportRPS:       cfg.ReportRPS,
		ReportBurst:     cfg.ReportBurst,
		StaticDir:       cfg.StaticDir,
		Version:         Version,
		Logger:          newLogger("api"),
	}
	if st != nil {
		srvCfg.Store = st
		srvCfg.Accountant = traffic.NewAccountant(traffic.AccountantConfig{
			Store:    st,
			Location: cfg.Location,
			Logger:   newLogger("traffic"),
		})
		if !serveNoGeo {
			srvCfg.Geo = geo.NewCache(geo.CacheConfig{
				Store: st,
				Lookup: geo.NewClient(geo.ClientConfig{
					Endpoint:      cfg.GeoEndpoint,
					RatePerMinute: cfg.GeoRatePerMinute,
				}),
				Logger: newLogger("geo"),
			})
		}
	}
	if cfg.Token == "" {
		warnColor.Println("   - ⚠️ API_TOKEN is not set; all reports will be rejected")
	}

	server := api.NewServer(srvCfg)
	fmt.Printf("   - Listening on %s\n", cfg.Addr)
	fmt.Printf("   - Refresh interval: %v, snapshot TTL: %v\n", cfg.RefreshInterval, cfg.SnapshotTTL)
	fmt.Println("   - ✅ Backend is running")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop the server")

	err = server.Start(ctx)
	fmt.Println("\n--- Shutting down vpswatch backend ---")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("   - ✅ Backend stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (default: $HTTP_ADDR or :3000)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Store URL: memory, redis://host:port/db or sqlite:///path")
	serveCmd.Flags().StringVar(&serveServersFile, "servers-file", "", "YAML file listing configured servers")
	serveCmd.Flags().StringVar(&serveStaticDir, "static", "", "Directory of static assets served at /")
	serveCmd.Flags().BoolVar(&serveNoGeo, "no-geo", false, "Disable IP geolocation of reporting nodes")
}
