package config

import (
	"fmt"
	"time"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type StoreDriver string

const (
	StorePostgres StoreDriver = "postgres"
	StoreSQLite   StoreDriver = "sqlite"
)

type FinStepConfig struct {
	Env      Environment `koanf:"env"`
	LogLevel string      `koanf:"log_level"` // zerolog level name
	Store    StoreDriver `koanf:"store"`

	Postgres    PostgresConfig    `koanf:"postgres"`
	SQLite      SQLiteConfig      `koanf:"sqlite"`
	Credibility CredibilityConfig `koanf:"credibility"`
	Jobs        JobsConfig        `koanf:"jobs"`
}

type PostgresConfig struct {
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Hostname string `koanf:"hostname"`
	Port     int    `koanf:"port"`
	DbName   string `koanf:"db_name"`
	LogLevel string `koanf:"log_level"` // pgx tracelog level name
	MinConn  int32  `koanf:"min_conn"`
	MaxConn  int32  `koanf:"max_conn"`
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

type SQLiteConfig struct {
	// Path to the database file. ":memory:" keeps everything in process.
	Path string `koanf:"path"`
}

// CredibilityConfig holds the tunables of the reputation system. SuperAdminEmail
// designates the one principal allowed to exceed the manual adjustment limit and
// who can never be suspended.
type CredibilityConfig struct {
	SuperAdminEmail  string `koanf:"super_admin_email"`
	DefaultScore     int    `koanf:"default_score"`
	AdminFloor       int    `koanf:"admin_floor"`
	ApproveDelta     int    `koanf:"approve_delta"`
	RejectDelta      int    `koanf:"reject_delta"`
	ManualDeltaLimit int    `koanf:"manual_delta_limit"`
}

type JobsConfig struct {
	RederiveLevelsInterval time.Duration `koanf:"rederive_levels_interval"`
	VerifyLedgersInterval  time.Duration `koanf:"verify_ledgers_interval"`
	VerifyConcurrency      int           `koanf:"verify_concurrency"`
}
