package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/refresh"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Uptime     string            `json:"uptime"`
	ResourceID string            `json:"resource_id"`
	Snapshot   *SnapshotResponse `json:"snapshot,omitempty"`
	Scheduler  *refresh.Stats    `json:"scheduler,omitempty"`
	Memory     *MemoryStats      `json:"memory,omitempty"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	AllocMB uint64 `json:"alloc_mb"`
	SysMB   uint64 `json:"sys_mb"`
	NumGC   uint32 `json:"num_gc"`
}

var startTime = time.Now()

// handleHealth reports process state without triggering a fetch. Status is
// "starting" until the first snapshot has been built.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:     "starting",
		Timestamp:  time.Now(),
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		ResourceID: s.resourceID,
		Memory: &MemoryStats{
			AllocMB: m.Alloc / 1024 / 1024,
			SysMB:   m.Sys / 1024 / 1024,
			NumGC:   m.NumGC,
		},
	}
	if snap, ok := s.loader.Latest(s.resourceID); ok {
		resp := newSnapshotResponse(snap)
		response.Snapshot = &resp
		response.Status = "ok"
	}
	if s.schedulerStats != nil {
		stats := s.schedulerStats()
		response.Scheduler = &stats
	}

	s.respondJSON(w, http.StatusOK, response)
}
