package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp string                   `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Memory    MemoryStats              `json:"memory"`
	Services  map[string]ServiceStatus `json:"services"`
	AI        map[string]string        `json:"ai"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Check probes one dependency. A failing critical check degrades the
// service.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) ServiceStatus
}

const checkTimeout = 5 * time.Second

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Services: make(map[string]ServiceStatus, len(h.deps.Checks)),
		AI: map[string]string{
			"defaultProvider": h.config.AI.DefaultProvider,
			"primaryEngine":   h.config.OCR.PrimaryEngine,
		},
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()
	for _, c := range h.deps.Checks {
		status := c.Probe(ctx)
		response.Services[c.Name] = status
		if c.Critical && !status.Available {
			response.Status = "degraded"
		}
	}

	if response.Status == "degraded" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// CommandCheck reports whether binary runs with args, keeping the first
// line of its output as the version.
func CommandCheck(binary string, args ...string) func(ctx context.Context) ServiceStatus {
	return func(ctx context.Context) ServiceStatus {
		output, err := exec.CommandContext(ctx, binary, args...).CombinedOutput()
		if err != nil {
			return ServiceStatus{
				Available: false,
				Error:     binary + " not found or not executable",
			}
		}
		version := "unknown"
		if line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n"); line != "" {
			version = strings.TrimSpace(line)
		}
		return ServiceStatus{Available: true, Version: version}
	}
}

// PingCheck wraps a connectivity probe such as a pool or bucket ping.
func PingCheck(version string, ping func(ctx context.Context) error) func(ctx context.Context) ServiceStatus {
	return func(ctx context.Context) ServiceStatus {
		if ping == nil {
			return ServiceStatus{Available: false, Error: "not configured"}
		}
		if err := ping(ctx); err != nil {
			return ServiceStatus{Available: false, Error: err.Error()}
		}
		return ServiceStatus{Available: true, Version: version}
	}
}
