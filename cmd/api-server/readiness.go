package main

import (
	"github.com/hackgods/clinic-availability/internal/api"
	"github.com/hackgods/clinic-availability/internal/config"
)

// readinessChecks splits dependency pings into required and optional sets.
// Redis is required when it backs the slot locks, since every booking and
// availability edit fails without it. redisPing is nil when Redis was never reached.
func readinessChecks(lockBackend string, pgPing, redisPing api.Check) (required, optional map[string]api.Check) {
	required = map[string]api.Check{"postgres": pgPing}
	optional = map[string]api.Check{}

	if redisPing == nil {
		return required, optional
	}
	if lockBackend == config.LockBackendRedis {
		required["redis"] = redisPing
	} else {
		optional["redis"] = redisPing
	}
	return required, optional
}
