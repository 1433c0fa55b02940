package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aceteam-ai/vpswatch/internal/fleet"
	"github.com/aceteam-ai/vpswatch/internal/status"
	"github.com/aceteam-ai/vpswatch/internal/store"
)

const (
	msgNoStore     = "Store not configured, showing configured nodes only"
	msgStoreFailed = "Store connection failed, showing configured nodes only"
)

// NodesResponse is the body of GET /api/nodes and of every live feed
// message.
type NodesResponse struct {
	Nodes           []status.NodeView `json:"nodes"`
	Timestamp       int64             `json:"timestamp"`       // unix millis
	Count           int               `json:"count"`           // len(nodes)
	KVAvailable     bool              `json:"kvAvailable"`     // store reachable
	RefreshInterval int64             `json:"refreshInterval"` // millis
	Message         string            `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"` // ok | degraded
	Version string `json:"version"`
	Store   string `json:"store"`
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listNodes(r.Context()))
}

// listNodes builds the served node list. Store failures never fail the
// listing: the configured nodes are served as placeholders instead.
func (s *Server) listNodes(ctx context.Context) NodesResponse {
	now := s.now()
	resp := NodesResponse{
		Timestamp:       now.UnixMilli(),
		RefreshInterval: s.refresh.Milliseconds(),
	}

	var nodes []status.NodeView
	switch snaps, err := s.snapshots(ctx); {
	case s.store == nil:
		nodes = fleet.Placeholders(s.fleet)
		resp.Message = msgNoStore
	case err != nil:
		s.logger.Printf("listing nodes failed: %v", err)
		nodes = fleet.Placeholders(s.fleet)
		resp.Message = msgStoreFailed
	default:
		nodes = fleet.Merge(s.fleet, snaps, now)
		resp.KVAvailable = true
	}

	resp.Nodes = nodes
	resp.Count = len(nodes)
	return resp
}

// snapshots reads every indexed snapshot with one bulk read. Expired or
// undecodable entries are skipped.
func (s *Server) snapshots(ctx context.Context) ([]status.Snapshot, error) {
	if s.store == nil {
		return nil, nil
	}
	ids, err := s.nodeIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("read node index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = store.NodeKey(id)
	}
	values, err := s.store.BulkGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}

	snaps := make([]status.Snapshot, 0, len(values))
	for i, data := range values {
		if data == nil {
			continue
		}
		var snap status.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Printf("skipping node %s: %v", ids[i], err)
			continue
		}
		if snap.ID == "" {
			snap.ID = ids[i]
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: s.version, Store: "none"}
	if s.store == nil {
		resp.Status = "degraded"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Store = store.Backend(s.store)
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Printf("store ping failed: %v", err)
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFeed upgrades to a websocket and pushes the node list every refresh
// interval until the client goes away or the server shuts down.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed for %s: %v", clientIP(r), err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only serve to notice the client closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(s.listNodes(ctx)); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}
