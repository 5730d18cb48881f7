// Package guard flips the process into test mode when imported, so main packages
// under test skip opening stores and listeners.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "ROLECOUNTER_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
