// Package testing puts the binaries in test mode. Test packages that start
// the API or worker entry points import it for its side effect.
package testing

import "os"

// Kept in step with app.TestModeEnv. Importing app here would cycle through
// app's own tests.
const modeEnv = "STOCKRECON_TEST_MODE"

func init() {
	if _, ok := os.LookupEnv(modeEnv); !ok {
		_ = os.Setenv(modeEnv, "1")
	}
}
