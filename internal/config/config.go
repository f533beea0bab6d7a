package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoginMode selects how the portal session is established.
type LoginMode string

const (
	LoginModePassword LoginMode = "password"
	LoginModeOAuth    LoginMode = "oauth"
)

// Engine names the page automation backend.
type Engine string

const (
	EngineChromedp Engine = "chromedp"
	EngineSelenium Engine = "selenium"
)

// Authority names the component that decides when runs happen.
type Authority string

const (
	AuthorityLaunchd Authority = "launchd"
	AuthorityLoop    Authority = "loop"
)

// AccountConfig holds portal credentials.
type AccountConfig struct {
	Email     string
	Password  string
	LoginMode LoginMode
}

// PortalConfig holds the target site addresses and selector overrides.
type PortalConfig struct {
	LoginURL        string
	ActionURL       string
	LoginMarkers    []string
	ActionSelectors []string
	OAuthSelectors  []string
}

// BrowserConfig holds page automation settings.
type BrowserConfig struct {
	Engine            Engine
	Headless          bool
	PersistentProfile bool
	ProfileDir        string
	SessionFile       string
	ScreenshotDir     string
	ChromePath        string
	WebDriverURL      string
	UserAgent         string

	NavTimeout   time.Duration
	SelectorWait time.Duration
	SettleDelay  time.Duration
	ManualGrace  time.Duration
}

// NetworkConfig holds the WiFi gate settings.
type NetworkConfig struct {
	ExpectedSSIDs []string
	Interface     string
}

// ScheduleConfig holds the scheduling authority and its targets.
type ScheduleConfig struct {
	Authority  Authority
	Spec       string
	RunTimeout time.Duration
	UseUTC     bool
}

// ServerConfig holds daemon API settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
	Mode      string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string
	Retention int
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// Config holds all runtime configuration options.
type Config struct {
	Account  AccountConfig
	Portal   PortalConfig
	Browser  BrowserConfig
	Network  NetworkConfig
	Schedule ScheduleConfig
	Server   ServerConfig
	Log      LogConfig
	Bark     BarkConfig

	StateDir      string
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "127.0.0.1:7071"
	defaultLogLevel      = "info"
	defaultRunLogKeep    = 30
	defaultShutdownGrace = 5 * time.Second
	defaultSchedule      = "checkin=09:00@1-5;checkout=18:00@1-5"
	defaultWebDriverURL  = "http://localhost:9515/wd/hub"
	defaultNavTimeout    = 30 * time.Second
	defaultSelectorWait  = 3 * time.Second
	defaultSettleDelay   = 3 * time.Second
	defaultManualGrace   = 60 * time.Second
	defaultRunTimeout    = 5 * time.Minute
)

var defaultLoginMarkers = []string{"login", "signin", "sign_in", "accounts.google.com"}

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList returns a comma-separated environment variable as a trimmed list.
func getEnvList(key string, defaultVal []string) []string {
	if val, ok := os.LookupEnv(key); ok {
		if list := SplitList(val); len(list) > 0 {
			return list
		}
	}
	return defaultVal
}

// SplitList splits a comma-separated value, trimming blanks and dropping empties.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Load reads .env files and environment variables into Config.
// Priority: Environment variables > explicit env files > ./.env >
// <UserConfigDir>/autopunch/.env > defaults. CLI flags are
// applied by the caller on top of the returned value.
func Load(extraEnvFiles ...string) (*Config, error) {
	envFiles := append([]string{}, extraEnvFiles...)
	envFiles = append(envFiles, ".env")
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "autopunch", ".env"))
	}
	for _, file := range envFiles {
		// godotenv never overrides variables that are already set, so the
		// first file that defines a key wins.
		_ = godotenv.Load(file)
	}

	cfg := &Config{
		Account: AccountConfig{
			Email:     getEnvString("AUTOPUNCH_EMAIL", ""),
			Password:  getEnvString("AUTOPUNCH_PASSWORD", ""),
			LoginMode: LoginMode(strings.ToLower(getEnvString("AUTOPUNCH_LOGIN_MODE", string(LoginModePassword)))),
		},
		Portal: PortalConfig{
			LoginURL:        getEnvString("AUTOPUNCH_LOGIN_URL", ""),
			ActionURL:       getEnvString("AUTOPUNCH_ACTION_URL", ""),
			LoginMarkers:    getEnvList("AUTOPUNCH_LOGIN_MARKERS", defaultLoginMarkers),
			ActionSelectors: getEnvList("AUTOPUNCH_ACTION_SELECTORS", nil),
			OAuthSelectors:  getEnvList("AUTOPUNCH_OAUTH_SELECTORS", nil),
		},
		Browser: BrowserConfig{
			Engine:            Engine(strings.ToLower(getEnvString("AUTOPUNCH_ENGINE", string(EngineChromedp)))),
			Headless:          getEnvBool("AUTOPUNCH_HEADLESS", true),
			PersistentProfile: getEnvBool("AUTOPUNCH_PERSISTENT_PROFILE", false),
			ProfileDir:        getEnvString("AUTOPUNCH_PROFILE_DIR", ""),
			SessionFile:       getEnvString("AUTOPUNCH_SESSION_FILE", ""),
			ScreenshotDir:     getEnvString("AUTOPUNCH_SCREENSHOT_DIR", ""),
			ChromePath:        getEnvString("AUTOPUNCH_CHROME_PATH", ""),
			WebDriverURL:      getEnvString("AUTOPUNCH_WEBDRIVER_URL", defaultWebDriverURL),
			UserAgent:         getEnvString("AUTOPUNCH_USER_AGENT", ""),
			NavTimeout:        getEnvDuration("AUTOPUNCH_NAV_TIMEOUT", defaultNavTimeout),
			SelectorWait:      getEnvDuration("AUTOPUNCH_SELECTOR_WAIT", defaultSelectorWait),
			SettleDelay:       getEnvDuration("AUTOPUNCH_SETTLE_DELAY", defaultSettleDelay),
			ManualGrace:       getEnvDuration("AUTOPUNCH_MANUAL_GRACE", defaultManualGrace),
		},
		Network: NetworkConfig{
			ExpectedSSIDs: getEnvList("AUTOPUNCH_WIFI_SSIDS", nil),
			Interface:     getEnvString("AUTOPUNCH_WIFI_INTERFACE", "en0"),
		},
		Schedule: ScheduleConfig{
			Authority:  Authority(strings.ToLower(getEnvString("AUTOPUNCH_SCHEDULER", string(AuthorityLaunchd)))),
			Spec:       getEnvString("AUTOPUNCH_SCHEDULE", defaultSchedule),
			RunTimeout: getEnvDuration("AUTOPUNCH_RUN_TIMEOUT", defaultRunTimeout),
			UseUTC:     getEnvBool("AUTOPUNCH_USE_UTC", false),
		},
		Server: ServerConfig{
			Addr:      getEnvString("AUTOPUNCH_ADDR", defaultAddr),
			AuthToken: getEnvString("AUTOPUNCH_AUTH_TOKEN", ""),
			Mode:      getEnvString("AUTOPUNCH_DAEMON_MODE", "http"),
		},
		Log: LogConfig{
			Level:     getEnvString("AUTOPUNCH_LOG_LEVEL", defaultLogLevel),
			Retention: getEnvInt("AUTOPUNCH_LOG_RETENTION", defaultRunLogKeep),
		},
		Bark: BarkConfig{
			URL:     getEnvString("AUTOPUNCH_BARK_URL", ""),
			Enabled: getEnvBool("AUTOPUNCH_BARK_ENABLED", false),
		},
		StateDir:      getEnvString("AUTOPUNCH_STATE_DIR", ""),
		ShutdownGrace: getEnvDuration("AUTOPUNCH_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	if cfg.Log.Retention < 1 {
		cfg.Log.Retention = defaultRunLogKeep
	}
	return cfg, nil
}

// Finalize resolves derived paths once CLI overrides have been applied.
func (c *Config) Finalize() error {
	if c.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return fmt.Errorf("resolve default state dir: %w", err)
		}
		c.StateDir = dir
	}
	if c.Browser.ProfileDir == "" {
		c.Browser.ProfileDir = filepath.Join(c.StateDir, "profile")
	}
	if c.Browser.SessionFile == "" {
		c.Browser.SessionFile = filepath.Join(c.StateDir, "session.json")
	}
	if c.Browser.ScreenshotDir == "" {
		c.Browser.ScreenshotDir = filepath.Join(c.StateDir, "screenshots")
	}
	if c.Portal.ActionURL == "" {
		c.Portal.ActionURL = c.Portal.LoginURL
	}
	return nil
}

// Location returns the time zone schedules are evaluated in.
func (c *Config) Location() *time.Location {
	if c.Schedule.UseUTC {
		return time.UTC
	}
	return time.Local
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "autopunch"), nil
}
