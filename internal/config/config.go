package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Operator  OperatorConfig  `mapstructure:"operator"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Roster    RosterConfig    `mapstructure:"roster"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// GatewayConfig points at the verifier gateway: the REST surface of the
// ledger's verification contract plus its strategy event stream.
type GatewayConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	StreamURL         string        `mapstructure:"stream_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ConfirmationDepth int           `mapstructure:"confirmation_depth"`
	ConfirmPollEvery  time.Duration `mapstructure:"confirm_poll_every"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
}

type OperatorConfig struct {
	PrivateKey        string        `mapstructure:"private_key"`
	ContractAddress   string        `mapstructure:"contract_address"`
	SimulateTimeout   time.Duration `mapstructure:"simulate_timeout"`
	SubmitMaxAttempts int           `mapstructure:"submit_max_attempts"`
	SubmitBackoffBase time.Duration `mapstructure:"submit_backoff_base"`
}

type AnalysisConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheCapacity int           `mapstructure:"cache_capacity"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateWindow    time.Duration `mapstructure:"rate_window"`
}

type ScoringConfig struct {
	HighVolatilityThreshold float64 `mapstructure:"high_volatility_threshold"`
	LowToleranceThreshold   float64 `mapstructure:"low_tolerance_threshold"`
}

type ConsensusConfig struct {
	QuorumFraction float64       `mapstructure:"quorum_fraction"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type RosterConfig struct {
	Endpoint  string   `mapstructure:"endpoint"`
	Operators []string `mapstructure:"operators"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AVS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("gateway.confirmation_depth", 1)
	v.SetDefault("gateway.confirm_poll_every", "2s")
	v.SetDefault("gateway.confirm_timeout", "2m")

	v.SetDefault("operator.simulate_timeout", "20s")
	v.SetDefault("operator.submit_max_attempts", 3)
	v.SetDefault("operator.submit_backoff_base", "1s")

	v.SetDefault("analysis.model", "gpt-4o-mini")
	v.SetDefault("analysis.timeout", "30s")
	v.SetDefault("analysis.cache_ttl", "5m")
	v.SetDefault("analysis.cache_capacity", 100)
	v.SetDefault("analysis.rate_limit", 50)
	v.SetDefault("analysis.rate_window", "1m")

	v.SetDefault("scoring.high_volatility_threshold", 0.6)
	v.SetDefault("scoring.low_tolerance_threshold", 0.3)

	v.SetDefault("consensus.quorum_fraction", 0.67)
	v.SetDefault("consensus.poll_timeout", "5m")
	v.SetDefault("consensus.sweep_interval", "10s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateOperator checks the values an operator process cannot run without.
// Missing values are a startup failure, not something to discover mid-pipeline.
func (c Config) ValidateOperator() error {
	var missing []string
	if strings.TrimSpace(c.Operator.PrivateKey) == "" {
		missing = append(missing, "operator.private_key")
	}
	if strings.TrimSpace(c.Operator.ContractAddress) == "" {
		missing = append(missing, "operator.contract_address")
	}
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		missing = append(missing, "gateway.base_url")
	}
	if strings.TrimSpace(c.Analysis.APIKey) == "" {
		missing = append(missing, "analysis.api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateAggregator checks the values the consensus service requires.
func (c Config) ValidateAggregator() error {
	var missing []string
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		missing = append(missing, "gateway.base_url")
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		missing = append(missing, "db.dsn")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
