// Package testing switches the process into test mode. Test packages import
// it for its side effects before touching app startup code.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("IFARMER_TEST_MODE", "1")
		if os.Getenv("PROVISION_ENABLED") == "" {
			_ = os.Setenv("PROVISION_ENABLED", "false")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be delegated to from a package TestMain.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
