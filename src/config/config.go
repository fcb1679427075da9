package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the environment variable that points at the config file.
const PathEnvVar = "FINSTEP_CONFIG"

const DefaultPath = "config.toml"

// Config is the process-wide configuration. It holds the defaults until Load is
// called, which is enough for tests and for local development against SQLite.
var Config = Defaults()

func Defaults() FinStepConfig {
	return FinStepConfig{
		Env:      Dev,
		LogLevel: "info",
		Store:    StoreSQLite,
		Postgres: PostgresConfig{
			User:     "finstep",
			Hostname: "localhost",
			Port:     5432,
			DbName:   "finstep",
			LogLevel: "warn",
			MinConn:  2,
			MaxConn:  10,
		},
		SQLite: SQLiteConfig{
			Path: "finstep.db",
		},
		Credibility: CredibilityConfig{
			DefaultScore:     50,
			AdminFloor:       90,
			ApproveDelta:     5,
			RejectDelta:      -10,
			ManualDeltaLimit: 20,
		},
		Jobs: JobsConfig{
			RederiveLevelsInterval: 15 * time.Minute,
			VerifyLedgersInterval:  6 * time.Hour,
			VerifyConcurrency:      4,
		},
	}
}

// ResolvePath picks the config file: the explicit path if given, then
// $FINSTEP_CONFIG, then ./config.toml.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := os.Getenv(PathEnvVar); fromEnv != "" {
		return fromEnv
	}
	return DefaultPath
}

// Load reads the TOML file at path on top of the defaults and replaces Config.
// A missing file is not an error; the defaults stay in effect.
func Load(path string) error {
	cfg, err := Read(path)
	if err != nil {
		return err
	}
	Config = cfg
	return nil
}

// Read parses the TOML file at path on top of the defaults without touching Config.
func Read(path string) (FinStepConfig, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, oops.New(err, "failed to stat config file %s", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return cfg, oops.New(err, "failed to load config file %s", path)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cfg, oops.New(err, "failed to parse config file %s", path)
	}
	if err := cfg.Jobs.validate(); err != nil {
		return cfg, oops.New(err, "invalid config file %s", path)
	}

	return cfg, nil
}

func (c JobsConfig) validate() error {
	if c.RederiveLevelsInterval <= 0 {
		return oops.Kinded(oops.KindValidation, nil, "jobs.rederive_levels_interval must be positive, got %v", c.RederiveLevelsInterval)
	}
	if c.VerifyLedgersInterval <= 0 {
		return oops.Kinded(oops.KindValidation, nil, "jobs.verify_ledgers_interval must be positive, got %v", c.VerifyLedgersInterval)
	}
	if c.VerifyConcurrency < 1 {
		return oops.Kinded(oops.KindValidation, nil, "jobs.verify_concurrency must be at least 1, got %d", c.VerifyConcurrency)
	}
	return nil
}
