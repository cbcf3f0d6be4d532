// health.go - Liveness probes for the daemon's collaborators.
//
// Each registered probe exercises one collaborator (ledger query, store read)
// on every /health request. A probe that errors marks the system unhealthy; a
// probe that passes slowly marks it degraded.

package main

import (
	"sort"
	"sync"
	"time"
)

// HealthStatus grades one probe or the system as a whole.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// slowProbe is the latency past which a passing probe counts as degraded.
const slowProbe = 250 * time.Millisecond

type probe struct {
	name  string
	check func() error
}

// ComponentHealth is the outcome of one probe.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency"`
}

// SystemHealth is the aggregate the /health endpoint serves.
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// HealthChecker runs registered probes on demand. Probes run under the lock,
// so they must be cheap reads against their collaborator.
type HealthChecker struct {
	mu      sync.Mutex
	probes  []probe
	started time.Time
	version string
}

// NewHealthChecker returns a checker with no probes.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{started: time.Now(), version: version}
}

// RegisterComponent adds a named probe.
func (hc *HealthChecker) RegisterComponent(name string, check func() error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes = append(hc.probes, probe{name: name, check: check})
}

// CheckHealth runs every probe and aggregates the outcome. The worst probe
// wins: any failure makes the system unhealthy, any slow pass degrades it.
func (hc *HealthChecker) CheckHealth() *SystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	overall := Healthy
	components := make([]ComponentHealth, 0, len(hc.probes))
	for _, p := range hc.probes {
		start := time.Now()
		err := p.check()
		latency := time.Since(start)

		c := ComponentHealth{
			Name:      p.name,
			Status:    Healthy,
			Message:   "ok",
			LastCheck: start,
			Latency:   latency,
		}
		switch {
		case err != nil:
			c.Status = Unhealthy
			c.Message = err.Error()
			overall = Unhealthy
		case latency > slowProbe:
			c.Status = Degraded
			c.Message = "slow probe"
			if overall == Healthy {
				overall = Degraded
			}
		}
		components = append(components, c)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     time.Now(),
		Components:    components,
		Uptime:        time.Since(hc.started),
		Version:       hc.version,
	}
}

// HealthCheckResponse is the envelope the /health endpoint serves.
type HealthCheckResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    *SystemHealth `json:"data,omitempty"`
}

// CreateHealthResponse wraps a SystemHealth for the endpoint.
func CreateHealthResponse(health *SystemHealth) *HealthCheckResponse {
	resp := &HealthCheckResponse{Status: "success", Message: "all probes passing", Data: health}
	switch health.OverallStatus {
	case Unhealthy:
		resp.Status = "error"
		resp.Message = "one or more probes failing"
	case Degraded:
		resp.Status = "warning"
		resp.Message = "one or more probes slow"
	}
	return resp
}
