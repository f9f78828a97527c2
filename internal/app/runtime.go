package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes the binaries exit before connecting to Postgres or Redis.
const TestModeEnv = "APPROVALS_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true value ("1", "true", ...).
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
