package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func TestRefreshTestModeParsesFlag(t *testing.T) {
	t.Cleanup(RefreshTestMode)

	cases := map[string]bool{
		"1":     true,
		"true":  true,
		" TRUE": true,
		"0":     false,
		"false": false,
		"":      false,
		"maybe": false,
	}
	for value, want := range cases {
		t.Setenv(testModeEnv, value)
		RefreshTestMode()
		assert.Equal(t, want, InTestMode(), "value %q", value)
	}
}
