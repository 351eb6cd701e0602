// Package guard flips the runtime into test mode before any test in the
// importing package runs, so main() bootstrap paths stay inert.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("APP_TEST_MODE") == "" {
			_ = os.Setenv("APP_TEST_MODE", "1")
		}
	})
}
