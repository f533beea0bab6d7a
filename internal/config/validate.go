package config

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid configuration value.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// ValidateRun checks the values a single check-in run needs.
func (c *Config) ValidateRun() error {
	if c.Account.Email == "" {
		return &ConfigurationError{Key: "AUTOPUNCH_EMAIL", Reason: "account identifier is required"}
	}
	switch c.Account.LoginMode {
	case LoginModePassword:
		if c.Account.Password == "" {
			return &ConfigurationError{Key: "AUTOPUNCH_PASSWORD", Reason: "password is required unless AUTOPUNCH_LOGIN_MODE=oauth"}
		}
	case LoginModeOAuth:
	default:
		return &ConfigurationError{Key: "AUTOPUNCH_LOGIN_MODE", Reason: fmt.Sprintf("unknown mode %q (want password or oauth)", c.Account.LoginMode)}
	}
	switch c.Browser.Engine {
	case EngineChromedp, EngineSelenium:
	default:
		return &ConfigurationError{Key: "AUTOPUNCH_ENGINE", Reason: fmt.Sprintf("unknown engine %q", c.Browser.Engine)}
	}
	return nil
}

// ValidateAuthority checks that want is the configured scheduling authority.
func (c *Config) ValidateAuthority(want Authority) error {
	switch c.Schedule.Authority {
	case AuthorityLaunchd, AuthorityLoop:
	default:
		return &ConfigurationError{Key: "AUTOPUNCH_SCHEDULER", Reason: fmt.Sprintf("unknown scheduler %q (want launchd or loop)", c.Schedule.Authority)}
	}
	if c.Schedule.Authority != want {
		return &ConfigurationError{
			Key:    "AUTOPUNCH_SCHEDULER",
			Reason: fmt.Sprintf("scheduler is %q; set it to %q to use this command", c.Schedule.Authority, want),
		}
	}
	return nil
}
