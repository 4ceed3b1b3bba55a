// Package controlsurface provides the ControlSurface type and registry
// for accessing a running fleet's state from any layer (REST API, CLI)
// without creating import cycles.
package controlsurface

import (
	"context"
	"sort"
	"sync"
	"time"

	"yqhp/worker-fleet/internal/queue"
	"yqhp/worker-fleet/internal/worker"
)

// Phase is the lifecycle stage of a run.
type Phase string

const (
	PhaseConnecting   Phase = "connecting"
	PhaseRunning      Phase = "running"
	PhaseShuttingDown Phase = "shutting_down"
	PhaseStopped      Phase = "stopped"
)

// Counters counts the reports the orchestrator consumed from its workers.
type Counters struct {
	HeartbeatReports uint64 `json:"heartbeat_reports"`
	TelemetrySamples uint64 `json:"telemetry_samples"`
	CommandResults   uint64 `json:"command_results"`
}

// Connectivity is the latest heartbeat receiver report.
type Connectivity struct {
	State  string    `json:"state"`
	Missed int       `json:"missed"`
	At     time.Time `json:"at,omitempty"`
}

// RunStatus is a point-in-time view of a run.
type RunStatus struct {
	RunID        string             `json:"run_id"`
	Phase        Phase              `json:"phase"`
	StartedAt    time.Time          `json:"started_at"`
	ElapsedMs    int64              `json:"elapsed_ms"`
	ExitPending  bool               `json:"exit_pending"`
	Connectivity Connectivity       `json:"connectivity"`
	Counters     Counters           `json:"counters"`
	Groups       []worker.GroupInfo `json:"groups"`
	Channels     []queue.Stats      `json:"channels"`
	PoolRunning  int                `json:"pool_running"`
	PoolCap      int                `json:"pool_cap"`
}

// Channel returns the stats of the named channel.
func (s *RunStatus) Channel(name string) (queue.Stats, bool) {
	for _, c := range s.Channels {
		if c.Name == name {
			return c, true
		}
	}
	return queue.Stats{}, false
}

// ControlSurface provides access to a running fleet's internal state.
type ControlSurface struct {
	RunCtx context.Context

	GetStatus func() *RunStatus
	StopRun   func() error
}

// --- Global registry ---

type entry struct {
	cs         *ControlSurface
	registered time.Time
}

var registry = struct {
	mu       sync.RWMutex
	surfaces map[string]entry
}{
	surfaces: make(map[string]entry),
}

// Register registers a ControlSurface for a run.
func Register(runID string, cs *ControlSurface) {
	registry.mu.Lock()
	registry.surfaces[runID] = entry{cs: cs, registered: time.Now()}
	registry.mu.Unlock()
}

// Unregister removes a ControlSurface for a run.
func Unregister(runID string) {
	registry.mu.Lock()
	delete(registry.surfaces, runID)
	registry.mu.Unlock()
}

// Get retrieves the ControlSurface for a run.
func Get(runID string) *ControlSurface {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.surfaces[runID].cs
}

// Latest returns the most recently registered run, or "" and nil.
func Latest() (string, *ControlSurface) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var (
		id     string
		latest entry
	)
	for runID, e := range registry.surfaces {
		if latest.cs == nil || e.registered.After(latest.registered) {
			id, latest = runID, e
		}
	}
	return id, latest.cs
}

// List returns the registered run IDs, sorted.
func List() []string {
	registry.mu.RLock()
	ids := make([]string, 0, len(registry.surfaces))
	for id := range registry.surfaces {
		ids = append(ids, id)
	}
	registry.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
