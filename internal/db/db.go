package db

import (
	"database/sql"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"betledger/internal/config"
)

// DB wraps one gorm connection and its underlying pool. The ledger store
// and the market store each get their own DB; nothing here assumes the
// two databases are related.
type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// Open connects to one postgres database and applies the pool settings
// from config. The gorm query logger is silenced; operational visibility
// comes from the application logger.
func Open(cfg config.DBConfig) (*DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

func (d *DB) Ping() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Ping()
}

// SetTimezone pins the session timezone so timestamptz values scan the
// same way across differently configured servers.
func (d *DB) SetTimezone(tz string) error {
	if d == nil || d.SQL == nil || tz == "" {
		return nil
	}
	_, err := d.SQL.Exec(`SELECT set_config('TimeZone', $1, false)`, tz)
	return err
}
