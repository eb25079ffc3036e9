package config

import (
	"fmt"
	"strings"

	"github.com/prediction-market/callindexor/internal/common"
	pkgconfig "github.com/prediction-market/callindexor/pkg/config"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. CALLINDEXOR_BASE_RPC_URL.
const EnvPrefix = "CALLINDEXOR"

type envOverride struct {
	key   string
	apply func(v *viper.Viper, cfg *pkgconfig.Config) error
}

// envOverrides lists the keys that may be set from the environment.
// Keys use the config file names; "." becomes "_" in the variable name.
var envOverrides = []envOverride{
	{"indexer.enable_base", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		cfg.Indexer.EnableBase = v.GetBool("indexer.enable_base")
		return nil
	}},
	{"indexer.enable_stellar", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		cfg.Indexer.EnableStellar = v.GetBool("indexer.enable_stellar")
		return nil
	}},
	{"base.rpc_url", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		base(cfg).RPCURL = v.GetString("base.rpc_url")
		return nil
	}},
	{"base.contract_address", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		base(cfg).ContractAddress = v.GetString("base.contract_address")
		return nil
	}},
	{"base.start_block", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		base(cfg).StartBlock = v.GetUint64("base.start_block")
		return nil
	}},
	{"base.poll_interval", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		return base(cfg).PollInterval.UnmarshalText([]byte(v.GetString("base.poll_interval")))
	}},
	{"base.max_retries", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		retries := v.GetInt("base.max_retries")
		base(cfg).MaxRetries = &retries
		return nil
	}},
	{"base.retry_delay", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		return durationOverride(&base(cfg).RetryDelay, v.GetString("base.retry_delay"))
	}},
	{"stellar.rpc_url", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		stellar(cfg).RPCURL = v.GetString("stellar.rpc_url")
		return nil
	}},
	{"stellar.contract_ids", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		stellar(cfg).ContractIDs = splitList(v.GetString("stellar.contract_ids"))
		return nil
	}},
	{"stellar.start_ledger", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		stellar(cfg).StartLedger = v.GetUint32("stellar.start_ledger")
		return nil
	}},
	{"stellar.poll_interval", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		return stellar(cfg).PollInterval.UnmarshalText([]byte(v.GetString("stellar.poll_interval")))
	}},
	{"stellar.max_retries", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		retries := v.GetInt("stellar.max_retries")
		stellar(cfg).MaxRetries = &retries
		return nil
	}},
	{"stellar.retry_delay", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		return durationOverride(&stellar(cfg).RetryDelay, v.GetString("stellar.retry_delay"))
	}},
	{"db.driver", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		cfg.DB.Driver = common.ToLowerWithTrim(v.GetString("db.driver"))
		return nil
	}},
	{"db.path", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		cfg.DB.Path = v.GetString("db.path")
		return nil
	}},
	{"db.dsn", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		cfg.DB.DSN = v.GetString("db.dsn")
		return nil
	}},
	{"logging.default_level", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		if cfg.Logging == nil {
			cfg.Logging = &pkgconfig.LoggingConfig{}
		}
		cfg.Logging.DefaultLevel = v.GetString("logging.default_level")
		return nil
	}},
	{"api.listen_address", func(v *viper.Viper, cfg *pkgconfig.Config) error {
		if cfg.API == nil {
			cfg.API = &pkgconfig.APIConfig{Enabled: true}
		}
		cfg.API.ListenAddress = v.GetString("api.listen_address")
		return nil
	}},
}

// ApplyEnvOverrides overwrites cfg fields with the values of any CALLINDEXOR_* variables set.
// Chain sections missing from the file are created when one of their keys is overridden.
func ApplyEnvOverrides(cfg *pkgconfig.Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, o := range envOverrides {
		if err := v.BindEnv(o.key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", o.key, err)
		}

		if !v.IsSet(o.key) {
			continue
		}

		if err := o.apply(v, cfg); err != nil {
			return fmt.Errorf("%s: %w", o.key, err)
		}
	}

	return nil
}

func base(cfg *pkgconfig.Config) *pkgconfig.BaseConfig {
	if cfg.Base == nil {
		cfg.Base = &pkgconfig.BaseConfig{}
	}
	return cfg.Base
}

func stellar(cfg *pkgconfig.Config) *pkgconfig.StellarConfig {
	if cfg.Stellar == nil {
		cfg.Stellar = &pkgconfig.StellarConfig{}
	}
	return cfg.Stellar
}

func durationOverride(dst **common.Duration, value string) error {
	var d common.Duration
	if err := d.UnmarshalText([]byte(value)); err != nil {
		return err
	}
	*dst = &d
	return nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
