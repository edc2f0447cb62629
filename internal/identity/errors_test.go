package identity

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func attrMap(attrs []any) map[string]string {
	out := map[string]string{}
	for _, a := range attrs {
		attr := a.(slog.Attr)
		out[attr.Key] = attr.Value.String()
	}
	return out
}

func TestDiagnostic(t *testing.T) {
	got := attrMap(Diagnostic(&UserProvisioningError{Email: "a@x.com", Role: "admin", Op: "create", Err: errors.New("boom")}))
	assert.Equal(t, "user_provisioning", got["kind"])
	assert.Equal(t, "a@x.com", got["email"])
	assert.Equal(t, "admin", got["role"])

	got = attrMap(Diagnostic(&RoleStoreError{Role: "buyer", Op: "find", Err: errors.New("boom")}))
	assert.Equal(t, "role_store", got["kind"])
	assert.Equal(t, "buyer", got["role"])

	got = attrMap(Diagnostic(&ProvisioningTimeoutError{Op: "create role", Subject: "admin", Timeout: time.Second}))
	assert.Equal(t, "timeout", got["kind"])
	assert.Equal(t, "admin", got["subject"])

	got = attrMap(Diagnostic(errors.New("plain")))
	assert.Len(t, got, 1)
	assert.Contains(t, got, "error")
}

func TestErrorKindsMatchSentinels(t *testing.T) {
	cause := errors.New("db down")
	err := error(&UserProvisioningError{Email: "a@x.com", Role: "admin", Op: "create", Err: cause})
	assert.ErrorIs(t, err, ErrUserProvisioning)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRoleStore)

	err = &RoleStoreError{Role: "admin", Op: "create", Err: cause}
	assert.ErrorIs(t, err, ErrRoleStore)

	err = &ProvisioningTimeoutError{Op: "find role", Subject: "admin", Timeout: time.Second}
	assert.ErrorIs(t, err, ErrProvisioningTimeout)
}
