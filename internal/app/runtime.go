package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// testModeEnv keeps both binaries from dialing postgres or redis and from
// provisioning identities. Any value strconv.ParseBool accepts as true
// enables it; the testing package sets it for every test binary.
const testModeEnv = "IFARMER_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

func readTestMode() bool {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv)))
	return err == nil && on
}

// InTestMode reports whether startup side effects should be skipped. The
// environment is read on first use and cached.
func InTestMode() bool {
	testMode.once.Do(RefreshTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads IFARMER_TEST_MODE.
func RefreshTestMode() {
	testMode.on.Store(readTestMode())
}
