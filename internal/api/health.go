package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	required map[string]Check
	optional map[string]Check
	env      string
	version  string
}

// NewHealthHandler reports "error" when a required dependency is down and
// "degraded" when only optional ones are.
func NewHealthHandler(required, optional map[string]Check, env, version string) *HealthHandler {
	return &HealthHandler{
		required: required,
		optional: optional,
		env:      env,
		version:  version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	requiredDown := runChecks(ctx, h.required, deps)
	optionalDown := runChecks(ctx, h.optional, deps)

	status := "ok"
	switch {
	case requiredDown:
		status = "error"
	case optionalDown:
		status = "degraded"
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}

func runChecks(ctx context.Context, checks map[string]Check, deps map[string]string) bool {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	down := false
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := checks[name](checkCtx)
		cancel()
		if err != nil {
			deps[name] = "down"
			down = true
			continue
		}
		deps[name] = "ok"
	}
	return down
}
