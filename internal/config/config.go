package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Log        LogConfig        `mapstructure:"log"`
	LedgerDB   DBConfig         `mapstructure:"ledger_db"`
	MarketDB   DBConfig         `mapstructure:"market_db"`
	Cron       CronConfig       `mapstructure:"cron"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Betting    BettingConfig    `mapstructure:"betting"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// DBConfig is shared by the ledger store and the market store. The two
// databases are owned independently; nothing assumes they are reachable
// through one connection.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	TxTimeout       time.Duration `mapstructure:"tx_timeout"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SettlementSweep string `mapstructure:"settlement_sweep"`
}

type OracleConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BettingConfig struct {
	MinBet int64 `mapstructure:"min_bet"`
	MaxBet int64 `mapstructure:"max_bet"`
}

type SettlementConfig struct {
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("ledger_db.max_open_conns", 20)
	v.SetDefault("ledger_db.max_idle_conns", 5)
	v.SetDefault("ledger_db.conn_max_lifetime", "30m")
	v.SetDefault("ledger_db.conn_max_idle_time", "5m")
	v.SetDefault("ledger_db.timezone", "UTC")
	v.SetDefault("ledger_db.tx_timeout", "10s")
	v.SetDefault("market_db.max_open_conns", 20)
	v.SetDefault("market_db.max_idle_conns", 5)
	v.SetDefault("market_db.conn_max_lifetime", "30m")
	v.SetDefault("market_db.conn_max_idle_time", "5m")
	v.SetDefault("market_db.timezone", "UTC")
	v.SetDefault("market_db.tx_timeout", "10s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.settlement_sweep", "@every 5m")
	v.SetDefault("oracle.base_url", "https://clob.polymarket.com")
	v.SetDefault("oracle.timeout", "10s")
	v.SetDefault("betting.min_bet", 10)
	v.SetDefault("betting.max_bet", 10000)
	v.SetDefault("settlement.sweep_interval", "5m")
	v.SetDefault("settlement.sweep_batch_size", 50)

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
