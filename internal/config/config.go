// Package config loads bankrun settings from defaults, an optional config
// file, a .env file and BANKRUN_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Backends accepted by Config.Backend.
const (
	BackendBank = "bank"
	BackendRPC  = "rpc"
)

// Config is the fully resolved configuration.
type Config struct {
	// Backend selects the in-process bank or a remote JSON-RPC node.
	Backend     string `mapstructure:"backend"`
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
	WSEndpoint  string `mapstructure:"ws_endpoint"`
	// KeypairPath is a solana-keygen JSON file. Empty generates a keypair.
	KeypairPath string `mapstructure:"keypair_path"`
	Commitment  string `mapstructure:"commitment"`

	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`

	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	// UseMemory records receipts in memory instead of the databases.
	UseMemory bool `mapstructure:"use_memory"`
	// LoadFixtures preloads genesis accounts from PostgreSQL.
	LoadFixtures bool `mapstructure:"load_fixtures"`

	MetricsAddr   string `mapstructure:"metrics_addr"`
	LogStreamAddr string `mapstructure:"logstream_addr"`

	// SlotInterval is how often serve produces a new slot. Zero disables it.
	SlotInterval     time.Duration `mapstructure:"slot_interval"`
	ScenarioInterval time.Duration `mapstructure:"scenario_interval"`

	Value     uint64 `mapstructure:"value"`
	Versioned bool   `mapstructure:"versioned"`
	ViaMaster bool   `mapstructure:"via_master"`
}

// Load resolves configuration. Precedence, highest first: flags that were
// set explicitly, environment, .env, config file, defaults. configPath and
// flags may be empty; a missing .env file is not an error.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	bindEnv(v)
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendBank)
	v.SetDefault("rpc_endpoint", "http://127.0.0.1:8899")
	v.SetDefault("ws_endpoint", "ws://127.0.0.1:8900")
	v.SetDefault("keypair_path", "")
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("poll_interval", 500*time.Millisecond)
	v.SetDefault("confirm_timeout", 60*time.Second)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("clickhouse_dsn", "")
	v.SetDefault("use_memory", false)
	v.SetDefault("load_fixtures", false)
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("logstream_addr", ":8900")
	v.SetDefault("slot_interval", 400*time.Millisecond)
	v.SetDefault("scenario_interval", 30*time.Second)
	v.SetDefault("value", 123456)
	v.SetDefault("versioned", false)
	v.SetDefault("via_master", false)
}

// bindEnv maps BANKRUN_<KEY> onto every key. The unprefixed names used by
// the rest of the toolchain are accepted as fallbacks.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("BANKRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fallbacks := map[string]string{
		"rpc_endpoint":   "SOLANA_RPC_ENDPOINT",
		"ws_endpoint":    "SOLANA_WS_ENDPOINT",
		"postgres_dsn":   "POSTGRES_DSN",
		"clickhouse_dsn": "CLICKHOUSE_DSN",
	}
	for key, env := range fallbacks {
		// BindEnv only fails without a key.
		_ = v.BindEnv(key, "BANKRUN_"+strings.ToUpper(key), env)
	}
}

// bindFlags binds every flag whose name, with dashes as underscores, is a
// config key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err != nil || !v.IsSet(key) {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendBank:
	case BackendRPC:
		if c.RPCEndpoint == "" {
			errs = append(errs, errors.New("rpc backend requires rpc_endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendBank, BackendRPC))
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("unknown commitment %q", c.Commitment))
	}
	if c.LoadFixtures && c.PostgresDSN == "" {
		errs = append(errs, errors.New("load_fixtures requires postgres_dsn"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.ConfirmTimeout < c.PollInterval {
		errs = append(errs, errors.New("confirm_timeout must be at least poll_interval"))
	}
	return errors.Join(errs...)
}

// LoadEnvFile sets variables from a dotenv file without overriding the
// existing environment. A missing file is ignored; a malformed one is not.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for key, value := range env {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}
