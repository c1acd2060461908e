package app

import (
	"os"
	"strconv"
	"strings"
)

// TestModeEnv makes both binaries return before they touch PostgreSQL,
// Redis or the asynq scheduler.
const TestModeEnv = "STOCKRECON_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true boolean. The
// environment is read on every call.
func InTestMode() bool {
	raw, ok := os.LookupEnv(TestModeEnv)
	if !ok {
		return false
	}
	on, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && on
}
