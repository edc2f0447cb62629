package identity

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedConfig configures one default account.
type SeedConfig struct {
	Email    string `envconfig:"EMAIL"`
	Password string `envconfig:"PASSWORD"`
}

// Config holds provisioning settings, read under the PROVISION_ prefix.
type Config struct {
	Enabled         bool          `envconfig:"ENABLED" default:"true"`
	Roles           []string      `envconfig:"ROLES" default:"admin,buyer,producer"`
	DefaultAdmin    SeedConfig    `envconfig:"DEFAULT_ADMIN"`
	DefaultBuyer    SeedConfig    `envconfig:"DEFAULT_BUYER"`
	DefaultProducer SeedConfig    `envconfig:"DEFAULT_PRODUCER"`
	File            string        `envconfig:"FILE"`
	CallTimeout     time.Duration `envconfig:"CALL_TIMEOUT" default:"5s"`
	Attempts        int           `envconfig:"ATTEMPTS" default:"3"`
	Backoff         time.Duration `envconfig:"BACKOFF" default:"100ms"`
	LockTTL         time.Duration `envconfig:"LOCK_TTL" default:"1m"`
	LockWait        time.Duration `envconfig:"LOCK_WAIT" default:"30s"`
	BcryptCost      int           `envconfig:"BCRYPT_COST" default:"10"`
	ReconcileCron   string        `envconfig:"RECONCILE_CRON" default:"@every 1h"`
}

// Options derives provisioner options from the configuration.
func (c Config) Options() Options {
	return Options{CallTimeout: c.CallTimeout, Attempts: c.Attempts, Backoff: c.Backoff}
}

// DesiredState builds the state to reconcile. A configured file replaces the
// environment-derived state entirely. Seeds without an email are skipped.
func (c Config) DesiredState() (DesiredState, error) {
	if c.File != "" {
		return LoadDesiredState(c.File)
	}
	state := DesiredState{Roles: trimAll(c.Roles)}
	seeds := []struct {
		cfg  SeedConfig
		role string
	}{
		{c.DefaultAdmin, "admin"},
		{c.DefaultBuyer, "buyer"},
		{c.DefaultProducer, "producer"},
	}
	for _, s := range seeds {
		if strings.TrimSpace(s.cfg.Email) == "" {
			continue
		}
		state.Users = append(state.Users, UserSeed{
			Email:    strings.TrimSpace(s.cfg.Email),
			Password: s.cfg.Password,
			Role:     s.role,
		})
	}
	return state, nil
}

// LoadDesiredState reads a YAML desired-state document:
//
//	roles: [admin, buyer, producer]
//	users:
//	  - {email: admin@ifarmer.local, password: secret, role: admin}
func LoadDesiredState(path string) (DesiredState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DesiredState{}, fmt.Errorf("identity: read desired state: %w", err)
	}
	var state DesiredState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return DesiredState{}, fmt.Errorf("identity: parse desired state: %w", err)
	}
	state.Roles = trimAll(state.Roles)
	return state, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
