package domain

import "time"

// Readiness levels, from best to worst.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck is the result of probing one dependency. A failing optional dependency
// (the idempotency cache, say) degrades the service instead of taking it out of rotation.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Optional  bool
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport is what /readyz renders.
type SystemHealthReport struct {
	Status      string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}

// OverallHealth returns the worst status across checks; no checks means ok.
func OverallHealth(checks map[string]SystemHealthCheck) string {
	status := HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case HealthStatusError:
			return HealthStatusError
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}
