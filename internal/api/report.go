package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/aceteam-ai/vpswatch/internal/geo"
	"github.com/aceteam-ai/vpswatch/internal/status"
	"github.com/aceteam-ai/vpswatch/internal/store"
	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

// GeoResult is the identity derived from geolocation, echoed back to the
// agent that reported.
type GeoResult struct {
	Location    string `json:"location"`
	CountryCode string `json:"countryCode"`
	Name        string `json:"name"`
}

// ReportResponse is the body of a successful report.
type ReportResponse struct {
	Success bool       `json:"success"`
	Geo     *GeoResult `json:"geo"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var rep status.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err := dec.Decode(&rep); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "trafficResetDay" {
			writeError(w, http.StatusBadRequest, "Invalid trafficResetDay: must be an integer between 1 and 28")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	rep.NodeID = strings.TrimSpace(rep.NodeID)
	if rep.NodeID == "" {
		writeError(w, http.StatusBadRequest, "Missing nodeId")
		return
	}
	if rep.TrafficResetDay != 0 && !traffic.ValidResetDay(rep.TrafficResetDay) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid trafficResetDay %d: must be between 1 and 28", rep.TrafficResetDay))
		return
	}

	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Store not configured")
		return
	}

	ctx := r.Context()
	snap, enriched := s.snapshot(ctx, rep)

	resetDay := s.fleet.ResetDay(rep.NodeID, rep.TrafficResetDay, rep.Network.ResetDay)
	usage, err := s.accountant.Account(ctx, rep.NodeID, rep.Network.TotalUpload, rep.Network.TotalDownload, resetDay)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap.Network.CycleUsed = usage.Used
	if usage.Rebased {
		s.logger.Printf("node %s: new traffic cycle %s", rep.NodeID, usage.CycleKey)
	}

	if err := store.SetJSON(ctx, s.store, store.NodeKey(rep.NodeID), snap, s.snapshotTTL); err != nil {
		s.logger.Printf("snapshot write for %s failed: %v", rep.NodeID, err)
		writeError(w, http.StatusServiceUnavailable, "Failed to store report")
		return
	}

	s.indexNode(ctx, rep.NodeID)

	writeJSON(w, http.StatusOK, ReportResponse{Success: true, Geo: enriched})
}

// snapshot turns a report into the stored snapshot, enriching identity
// from geolocation when the agent left it at defaults.
func (s *Server) snapshot(ctx context.Context, rep status.Report) (status.Snapshot, *GeoResult) {
	id := geo.Identity{Name: rep.Name, Location: rep.Location, CountryCode: rep.CountryCode}

	var enriched *GeoResult
	if s.geo != nil && geo.NeedsLookup(rep.IPAddress, id) {
		if info, ok := s.geo.Get(ctx, rep.IPAddress); ok {
			id = geo.Apply(id, rep.NodeID, info)
			enriched = &GeoResult{Location: id.Location, CountryCode: id.CountryCode, Name: id.Name}
		}
	}

	snap := status.Snapshot{
		ID:              rep.NodeID,
		Name:            id.Name,
		Location:        id.Location,
		CountryCode:     id.CountryCode,
		TrafficResetDay: rep.TrafficResetDay,
		LastUpdate:      s.now().UnixMilli(),
		Host:            rep.Host,
	}
	if snap.Name == "" {
		snap.Name = rep.NodeID
	}
	if snap.Location == "" {
		snap.Location = status.DefaultLocation
	}
	if snap.CountryCode == "" {
		snap.CountryCode = status.DefaultCountryCode
	}
	// Usage is derived here, never taken from the agent.
	snap.Network.CycleUsed = 0
	return snap, enriched
}

// indexNode appends id to the node index if it is not there yet. When the
// index cannot be read the update is skipped rather than overwriting it.
func (s *Server) indexNode(ctx context.Context, id string) {
	ids, err := s.nodeIndex(ctx)
	if err != nil {
		s.logger.Printf("node index read failed, not indexing %s: %v", id, err)
		return
	}
	if slices.Contains(ids, id) {
		return
	}
	ids = append(ids, id)
	if err := store.SetJSON(ctx, s.store, store.NodeIndexKey, ids, NodeIndexTTL); err != nil {
		s.logger.Printf("node index write for %s failed: %v", id, err)
	}
}

// nodeIndex returns the indexed node ids in first-report order. A missing
// index is empty.
func (s *Server) nodeIndex(ctx context.Context) ([]string, error) {
	var ids []string
	err := store.GetJSON(ctx, s.store, store.NodeIndexKey, &ids)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return ids, err
}
