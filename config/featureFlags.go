package config

import (
	"os"
	"strings"
)

// UseRedisExecutionLock enables the best-effort redis advisory lock around
// stock-out execution. The DB-level status guard stays on regardless; this
// flag only reduces contention between instances.
//
// Set via env:
// - EXECUTION_REDIS_LOCK=true
func UseRedisExecutionLock() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("EXECUTION_REDIS_LOCK")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AutoMigrateOnBoot controls whether the server runs gorm AutoMigrate at startup.
//
// Set via env:
// - AUTO_MIGRATE=false to disable (managed environments run migrations out of band)
func AutoMigrateOnBoot() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AUTO_MIGRATE")))
	if v == "" {
		return true
	}
	return v != "0" && v != "false" && v != "no" && v != "n"
}
