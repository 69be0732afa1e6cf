package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/paw-chain/pawmarket/api"
	"github.com/paw-chain/pawmarket/app"
	"github.com/paw-chain/pawmarket/app/health"
	"github.com/paw-chain/pawmarket/app/telemetry"
)

const (
	// EnvPrefix prefixes every environment override, e.g. MARKETD_API_PORT.
	EnvPrefix = "MARKETD"

	configFileName  = "marketd.toml"
	genesisFileName = "genesis.json"

	dbBackendGoLevelDB = "goleveldb"
	dbBackendMemDB     = "memdb"
)

// Config keys. Nested keys map onto TOML tables.
const (
	keyLogLevel  = "log.level"
	keyLogFormat = "log.format"

	keyDBBackend = "db.backend"

	keyAuthority     = "market.authority"
	keySignedProofs  = "market.signed-proofs"
	keyBlockInterval = "market.block-interval"

	keyAPIHost           = "api.host"
	keyAPIPort           = "api.port"
	keyAPIJWTSecret      = "api.jwt-secret"
	keyAPICORSOrigins    = "api.cors-origins"
	keyAPIRateLimit      = "api.rate-limit-rps"
	keyAPIRateLimitBurst = "api.rate-limit-burst"
	keyAPIRequestTimeout = "api.request-timeout"
	keyAPITLSCert        = "api.tls-cert-file"
	keyAPITLSKey         = "api.tls-key-file"
	keyAPIMetrics        = "api.metrics"

	keyAuditLog          = "audit.log"
	keyAuditPostgresURL  = "audit.postgres-url"
	keyAuditPostgresMax  = "audit.postgres-max-connections"
	keyAuditPostgresIdle = "audit.postgres-max-idle"

	keyTelemetryEnabled     = "telemetry.enabled"
	keyTelemetryEndpoint    = "telemetry.otlp-endpoint"
	keyTelemetrySampleRate  = "telemetry.sample-rate"
	keyTelemetryEnvironment = "telemetry.environment"

	keyHealthMaxBlockAge = "health.max-block-age"
)

// DaemonConfig is the resolved daemon configuration.
type DaemonConfig struct {
	Home string

	LogLevel  string
	LogFormat string
	DBBackend string

	Authority     string
	SignedProofs  bool
	BlockInterval time.Duration

	API       api.Config
	Telemetry telemetry.Config
	Health    health.Config

	AuditLog bool
	Postgres app.PostgresConfig
}

// ConfigPath returns the config file location under home.
func ConfigPath(home string) string {
	return filepath.Join(home, "config", configFileName)
}

// GenesisPath returns the genesis file location under home.
func GenesisPath(home string) string {
	return filepath.Join(home, "config", genesisFileName)
}

// DataDir returns the state directory under home.
func DataDir(home string) string {
	return filepath.Join(home, "data")
}

func setDefaults(v *viper.Viper) {
	apiDefaults := api.DefaultConfig()
	healthDefaults := health.DefaultConfig()

	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "plain")
	v.SetDefault(keyDBBackend, dbBackendGoLevelDB)

	v.SetDefault(keyAuthority, "")
	v.SetDefault(keySignedProofs, false)
	v.SetDefault(keyBlockInterval, app.DefaultBlockInterval.String())

	v.SetDefault(keyAPIHost, apiDefaults.Host)
	v.SetDefault(keyAPIPort, apiDefaults.Port)
	v.SetDefault(keyAPIJWTSecret, "")
	v.SetDefault(keyAPICORSOrigins, apiDefaults.CORSOrigins)
	v.SetDefault(keyAPIRateLimit, apiDefaults.RateLimitRPS)
	v.SetDefault(keyAPIRateLimitBurst, 0)
	v.SetDefault(keyAPIRequestTimeout, apiDefaults.RequestTimeout.String())
	v.SetDefault(keyAPITLSCert, "")
	v.SetDefault(keyAPITLSKey, "")
	v.SetDefault(keyAPIMetrics, apiDefaults.MetricsEnabled)

	v.SetDefault(keyAuditLog, true)
	v.SetDefault(keyAuditPostgresURL, "")
	v.SetDefault(keyAuditPostgresMax, 10)
	v.SetDefault(keyAuditPostgresIdle, 2)

	v.SetDefault(keyTelemetryEnabled, false)
	v.SetDefault(keyTelemetryEndpoint, "localhost:4318")
	v.SetDefault(keyTelemetrySampleRate, 1.0)
	v.SetDefault(keyTelemetryEnvironment, "development")

	v.SetDefault(keyHealthMaxBlockAge, healthDefaults.MaxBlockAge.String())
}

// newViper returns a viper instance reading home's config file and MARKETD_
// environment overrides.
func newViper(home string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")
	v.SetConfigFile(ConfigPath(home))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig resolves the daemon configuration for home. A missing config
// file is not an error; defaults and the environment still apply.
func LoadConfig(home string) (*DaemonConfig, error) {
	v := newViper(home)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigPath(home), err)
		}
	}
	return configFromViper(home, v)
}

func configFromViper(home string, v *viper.Viper) (*DaemonConfig, error) {
	blockInterval, err := cast.ToDurationE(v.Get(keyBlockInterval))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyBlockInterval, err)
	}
	if blockInterval <= 0 {
		return nil, fmt.Errorf("%s must be positive", keyBlockInterval)
	}
	requestTimeout, err := cast.ToDurationE(v.Get(keyAPIRequestTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyAPIRequestTimeout, err)
	}
	maxBlockAge, err := cast.ToDurationE(v.Get(keyHealthMaxBlockAge))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyHealthMaxBlockAge, err)
	}
	sampleRate, err := cast.ToFloat64E(v.Get(keyTelemetrySampleRate))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyTelemetrySampleRate, err)
	}

	backend := strings.ToLower(cast.ToString(v.Get(keyDBBackend)))
	switch backend {
	case dbBackendGoLevelDB, dbBackendMemDB:
	default:
		return nil, fmt.Errorf("%s: unsupported backend %q", keyDBBackend, backend)
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Host = cast.ToString(v.Get(keyAPIHost))
	apiCfg.Port = cast.ToString(v.Get(keyAPIPort))
	apiCfg.JWTSecret = []byte(cast.ToString(v.Get(keyAPIJWTSecret)))
	apiCfg.CORSOrigins = corsOrigins(v.Get(keyAPICORSOrigins))
	apiCfg.RateLimitRPS = cast.ToInt(v.Get(keyAPIRateLimit))
	apiCfg.RateLimitBurst = cast.ToInt(v.Get(keyAPIRateLimitBurst))
	apiCfg.RequestTimeout = requestTimeout
	apiCfg.TLSCertFile = cast.ToString(v.Get(keyAPITLSCert))
	apiCfg.TLSKeyFile = cast.ToString(v.Get(keyAPITLSKey))
	apiCfg.TLSEnabled = apiCfg.TLSCertFile != "" || apiCfg.TLSKeyFile != ""
	apiCfg.MetricsEnabled = cast.ToBool(v.Get(keyAPIMetrics))

	healthCfg := health.DefaultConfig()
	healthCfg.MaxBlockAge = maxBlockAge

	return &DaemonConfig{
		Home:          home,
		LogLevel:      cast.ToString(v.Get(keyLogLevel)),
		LogFormat:     cast.ToString(v.Get(keyLogFormat)),
		DBBackend:     backend,
		Authority:     cast.ToString(v.Get(keyAuthority)),
		SignedProofs:  cast.ToBool(v.Get(keySignedProofs)),
		BlockInterval: blockInterval,
		API:           *apiCfg,
		Telemetry: telemetry.Config{
			Enabled:           cast.ToBool(v.Get(keyTelemetryEnabled)),
			OTLPEndpoint:      cast.ToString(v.Get(keyTelemetryEndpoint)),
			SampleRate:        sampleRate,
			Environment:       cast.ToString(v.Get(keyTelemetryEnvironment)),
			PrometheusEnabled: apiCfg.MetricsEnabled,
		},
		Health:   healthCfg,
		AuditLog: cast.ToBool(v.Get(keyAuditLog)),
		Postgres: app.PostgresConfig{
			URL:            cast.ToString(v.Get(keyAuditPostgresURL)),
			MaxConnections: cast.ToInt(v.Get(keyAuditPostgresMax)),
			MaxIdle:        cast.ToInt(v.Get(keyAuditPostgresIdle)),
			ConnMaxLife:    30 * time.Minute,
		},
	}, nil
}

// corsOrigins accepts either a TOML array or a comma separated string, the
// latter being what an environment override produces.
func corsOrigins(raw interface{}) []string {
	if s, ok := raw.(string); ok {
		raw = strings.Split(s, ",")
	}
	var out []string
	for _, origin := range cast.ToStringSlice(raw) {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// WriteDefaultConfig writes the default configuration to home, filling in
// jwtSecret. It refuses to replace an existing file unless overwrite is set.
func WriteDefaultConfig(home, jwtSecret string, overwrite bool) error {
	path := ConfigPath(home)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.Set(keyAPIJWTSecret, jwtSecret)
	v.SetConfigType("toml")
	return v.WriteConfigAs(path)
}
