package core

import "strings"

// Environment is the deployment stage the desk runs in (APP_ENV).
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

// UsesConsoleLogs reports whether logs should be human readable instead of JSON.
func (e Environment) UsesConsoleLogs() bool {
	return e == Development || e == Testing
}

// DefaultLogLevel is used when LOG_LEVEL is unset.
func (e Environment) DefaultLogLevel() string {
	if e == Production || e == Staging {
		return "info"
	}
	return "debug"
}

// ParseEnvironment is case-insensitive. Anything unknown is Development.
func ParseEnvironment(v string) Environment {
	env := Environment(strings.ToLower(strings.TrimSpace(v)))
	switch env {
	case Production, Staging, Testing:
		return env
	}
	return Development
}
