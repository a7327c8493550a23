package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Matchup identifies one sensor entity: a Yahoo league key plus the team to
// track inside it. Several matchups may run in one process and share the
// same OAuth credentials.
type Matchup struct {
	GameKey  string `validate:"required"`
	LeagueID string `validate:"required"`
	TeamID   string `validate:"required"`
}

// LeagueKey renders the Yahoo league key, e.g. "449.l.12345".
func (m Matchup) LeagueKey() string {
	return fmt.Sprintf("%s.l.%s", m.GameKey, m.LeagueID)
}

// TeamKey renders the Yahoo team key, e.g. "449.l.12345.t.3".
func (m Matchup) TeamKey() string {
	return fmt.Sprintf("%s.l.%s.t.%s", m.GameKey, m.LeagueID, m.TeamID)
}

// Config stores runtime configuration for the sensor process.
type Config struct {
	AppEnv         string `validate:"required,oneof=dev stage prod"`
	ServiceName    string `validate:"required"`
	ServiceVersion string `validate:"required"`

	Matchups          []Matchup `validate:"min=1,dive"`
	OAuthFile         string    `validate:"required"`
	MinUpdateInterval time.Duration
	DebugMode         bool
	DebugDumpDir      string

	YahooBaseURL              string `validate:"required,url"`
	YahooTimeout              time.Duration
	YahooMaxAttempts          int
	YahooCircuitEnabled       bool
	YahooCircuitFailureCount  int
	YahooCircuitOpenTimeout   time.Duration
	YahooCircuitHalfOpenMaxRq int

	StatusEnabled bool
	StatusAddr    string

	PprofEnabled bool
	PprofAddr    string

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration

	UptraceEnabled bool
	UptraceDSN     string

	LogLevel logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	matchups, err := parseMatchups(getEnv("YAHOO_MATCHUPS", ""))
	if err != nil {
		return Config{}, fmt.Errorf("parse YAHOO_MATCHUPS: %w", err)
	}
	if len(matchups) == 0 {
		return Config{}, fmt.Errorf("YAHOO_MATCHUPS is required, expected game.l.league:team items")
	}

	minUpdateInterval, err := time.ParseDuration(getEnv("UPDATE_MIN_INTERVAL", "5m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPDATE_MIN_INTERVAL: %w", err)
	}
	if minUpdateInterval <= 0 {
		return Config{}, fmt.Errorf("UPDATE_MIN_INTERVAL must be > 0")
	}

	debugMode, err := strconv.ParseBool(getEnv("DEBUG_MODE", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DEBUG_MODE: %w", err)
	}

	yahooTimeout, err := time.ParseDuration(getEnv("YAHOO_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse YAHOO_TIMEOUT: %w", err)
	}
	if yahooTimeout <= 0 {
		return Config{}, fmt.Errorf("YAHOO_TIMEOUT must be > 0")
	}
	yahooMaxAttempts, err := getEnvAsInt("YAHOO_MAX_ATTEMPTS", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse YAHOO_MAX_ATTEMPTS: %w", err)
	}
	if yahooMaxAttempts < 1 {
		return Config{}, fmt.Errorf("YAHOO_MAX_ATTEMPTS must be >= 1")
	}

	yahooCircuitEnabled, err := strconv.ParseBool(getEnv("YAHOO_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse YAHOO_CIRCUIT_ENABLED: %w", err)
	}
	yahooCircuitFailureCount, err := getEnvAsInt("YAHOO_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse YAHOO_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if yahooCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("YAHOO_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	yahooCircuitOpenTimeout, err := time.ParseDuration(getEnv("YAHOO_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse YAHOO_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if yahooCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("YAHOO_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	yahooCircuitHalfOpenMaxRq, err := getEnvAsInt("YAHOO_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse YAHOO_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if yahooCircuitHalfOpenMaxRq < 1 {
		return Config{}, fmt.Errorf("YAHOO_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	statusEnabled, err := strconv.ParseBool(getEnv("STATUS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse STATUS_ENABLED: %w", err)
	}
	statusAddr := strings.TrimSpace(getEnv("STATUS_ADDR", ":8127"))
	if statusEnabled && statusAddr == "" {
		return Config{}, fmt.Errorf("STATUS_ADDR is required when STATUS_ENABLED=true")
	}

	pprofEnabled, err := strconv.ParseBool(getEnv("PPROF_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}
	pprofAddr := strings.TrimSpace(getEnv("PPROF_ADDR", ":6060"))
	if pprofEnabled && pprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	cfg := Config{
		AppEnv:                     appEnv,
		ServiceName:                getEnv("APP_SERVICE_NAME", "yahoo-matchup-sensor"),
		ServiceVersion:             getEnv("APP_SERVICE_VERSION", "dev"),
		Matchups:                   matchups,
		OAuthFile:                  getEnv("YAHOO_OAUTH_FILE", "/config/oauth.json"),
		MinUpdateInterval:          minUpdateInterval,
		DebugMode:                  debugMode,
		DebugDumpDir:               strings.TrimSpace(getEnv("DEBUG_DUMP_DIR", "")),
		YahooBaseURL:               strings.TrimRight(strings.TrimSpace(getEnv("YAHOO_BASE_URL", "https://fantasysports.yahooapis.com/fantasy/v2")), "/"),
		YahooTimeout:               yahooTimeout,
		YahooMaxAttempts:           yahooMaxAttempts,
		YahooCircuitEnabled:        yahooCircuitEnabled,
		YahooCircuitFailureCount:   yahooCircuitFailureCount,
		YahooCircuitOpenTimeout:    yahooCircuitOpenTimeout,
		YahooCircuitHalfOpenMaxRq:  yahooCircuitHalfOpenMaxRq,
		StatusEnabled:              statusEnabled,
		StatusAddr:                 statusAddr,
		PprofEnabled:               pprofEnabled,
		PprofAddr:                  pprofAddr,
		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
		UptraceEnabled:             uptraceEnabled,
		UptraceDSN:                 uptraceDSN,
		LogLevel:                   parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// parseMatchups parses "449.l.12345:3,461.l.98765:7" into matchup entries.
// The left side is a Yahoo league key (game.l.league), the right side the
// team id inside that league.
func parseMatchups(raw string) ([]Matchup, error) {
	out := make([]Matchup, 0, 2)
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}

		segments := strings.SplitN(item, ":", 2)
		if len(segments) != 2 {
			return nil, fmt.Errorf("invalid item %q, expected game.l.league:team", item)
		}

		leagueKey := strings.TrimSpace(segments[0])
		teamID := strings.TrimSpace(segments[1])
		if teamID == "" {
			return nil, fmt.Errorf("empty team id in item %q", item)
		}

		keyParts := strings.Split(leagueKey, ".l.")
		if len(keyParts) != 2 || strings.TrimSpace(keyParts[0]) == "" || strings.TrimSpace(keyParts[1]) == "" {
			return nil, fmt.Errorf("invalid league key %q in item %q, expected game.l.league", leagueKey, item)
		}

		out = append(out, Matchup{
			GameKey:  strings.TrimSpace(keyParts[0]),
			LeagueID: strings.TrimSpace(keyParts[1]),
			TeamID:   teamID,
		})
	}
	return out, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}
