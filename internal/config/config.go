// Package config holds the loader's run configuration. Every tunable is a
// flag; viper fills in anything not given on the command line from the
// environment (LOADER_ prefix) and then from an optional TOML file.
//
// Typical usage from a cobra command:
//
//	cfg := config.New()
//	cfg.RegisterFlags(cmd.Flags())
//	...
//	if err := config.Resolve(viper.New(), cmd.Flags()); err != nil { ... }
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"stagingloader/internal/domain"
)

// EnvPrefix prefixes every environment variable read by Resolve.
const EnvPrefix = "LOADER"

// ConnectionParams describes the target store.
type ConnectionParams struct {
	Driver   string // mysql, postgres, mssql or sqlite
	Host     string
	Port     int // 0 selects the driver default
	User     string
	Password string
	Database string // database name; file path for sqlite
}

// Config is the full run configuration. All fields are plain values so the
// struct can be copied across goroutines once resolved.
type Config struct {
	CatalogCSV    string
	RatingsCSV    string
	CatalogHeader bool   // skip the first catalog line
	Delimiter     string // single byte; `\t` is accepted for tab
	Encoding      string // IANA name of the input text encoding

	Conn         ConnectionParams
	CatalogTable string
	RatingsTable string
	EnsureTables bool

	Workers     int
	Pushgateway string // optional Prometheus Pushgateway URL
}

var drivers = []string{"mysql", "postgres", "mssql", "sqlite"}

// DefaultWorkers is one less than the CPU count, never below one.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		Delimiter:    ",",
		Encoding:     "utf-8",
		Conn:         ConnectionParams{Driver: "mysql", Host: "localhost", Database: "stagingDB"},
		CatalogTable: "catalogStaging",
		RatingsTable: "ratingStaging",
		EnsureTables: true,
		Workers:      DefaultWorkers(),
	}
}

// RegisterFlags defines one flag per field on fs, bound to c and defaulting
// to c's current values.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.CatalogCSV, "catalog_csv", c.CatalogCSV, "Path to the catalog (movies) file")
	fs.StringVar(&c.RatingsCSV, "ratings_csv", c.RatingsCSV, "Path to the ratings file")
	fs.BoolVar(&c.CatalogHeader, "catalog_header", c.CatalogHeader, "Skip the first line of the catalog file")
	fs.StringVar(&c.Delimiter, "delimiter", c.Delimiter, "Field delimiter of both input files")
	fs.StringVar(&c.Encoding, "encoding", c.Encoding, "Text encoding of both input files")

	fs.StringVar(&c.Conn.Driver, "db_driver", c.Conn.Driver, "Store driver: "+strings.Join(drivers, ", "))
	fs.StringVar(&c.Conn.Host, "db_host", c.Conn.Host, "DB host")
	fs.IntVar(&c.Conn.Port, "db_port", c.Conn.Port, "DB port (0 uses the driver default)")
	fs.StringVar(&c.Conn.User, "db_user", c.Conn.User, "DB user")
	fs.StringVar(&c.Conn.Password, "db_password", c.Conn.Password, "DB password")
	fs.StringVar(&c.Conn.Database, "db_name", c.Conn.Database, "DB name (file path for sqlite)")

	fs.StringVar(&c.CatalogTable, "catalog_table", c.CatalogTable, "Staging table for catalog records")
	fs.StringVar(&c.RatingsTable, "ratings_table", c.RatingsTable, "Staging table for mean ratings")
	fs.BoolVar(&c.EnsureTables, "ensure_tables", c.EnsureTables, "Create missing staging tables before loading")

	fs.IntVarP(&c.Workers, "workers", "w", c.Workers, "Number of parallel workers")
	fs.StringVar(&c.Pushgateway, "pushgateway", c.Pushgateway, "Prometheus Pushgateway URL (empty disables pushing)")
	fs.StringP("config", "c", "", "TOML configuration file")
}

// Resolve fills every flag not set on the command line from the environment
// (LOADER_<FLAG_NAME>) or, failing that, from the TOML file named by the
// config flag. Unknown keys in the file are rejected.
func Resolve(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	valid := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) { valid[f.Name] = true })

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return &domain.ConfigError{Field: "config", Reason: fmt.Sprintf("reading %s: %v", file, err)}
		}
		for _, key := range v.AllKeys() {
			if !valid[key] {
				return &domain.ConfigError{Field: key, Reason: "unknown option in configuration file"}
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			flagErr = &domain.ConfigError{Field: f.Name, Reason: err.Error()}
		}
	})
	return flagErr
}

// Comma returns the delimiter byte. Call only after Validate.
func (c *Config) Comma() byte {
	if c.Delimiter == `\t` {
		return '\t'
	}
	return c.Delimiter[0]
}

// Validate reports the first invalid setting as a *domain.ConfigError.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.CatalogCSV) == "":
		return &domain.ConfigError{Field: "catalog_csv", Reason: "required"}
	case strings.TrimSpace(c.RatingsCSV) == "":
		return &domain.ConfigError{Field: "ratings_csv", Reason: "required"}
	case c.Workers < 1:
		return &domain.ConfigError{Field: "workers", Reason: fmt.Sprintf("must be at least 1, got %d", c.Workers)}
	case c.Delimiter != `\t` && len(c.Delimiter) != 1:
		return &domain.ConfigError{Field: "delimiter", Reason: fmt.Sprintf("must be a single byte, got %q", c.Delimiter)}
	case c.Delimiter == `"` || c.Delimiter == "\n" || c.Delimiter == "\r":
		return &domain.ConfigError{Field: "delimiter", Reason: fmt.Sprintf("%q cannot be used", c.Delimiter)}
	case !knownDriver(c.Conn.Driver):
		return &domain.ConfigError{Field: "db_driver", Reason: fmt.Sprintf("unknown driver %q (want one of %s)", c.Conn.Driver, strings.Join(drivers, ", "))}
	case c.Conn.Driver != "sqlite" && strings.TrimSpace(c.Conn.Host) == "":
		return &domain.ConfigError{Field: "db_host", Reason: "required"}
	case c.Conn.Port < 0 || c.Conn.Port > 65535:
		return &domain.ConfigError{Field: "db_port", Reason: fmt.Sprintf("out of range: %d", c.Conn.Port)}
	case strings.TrimSpace(c.Conn.Database) == "":
		return &domain.ConfigError{Field: "db_name", Reason: "required"}
	case strings.TrimSpace(c.CatalogTable) == "":
		return &domain.ConfigError{Field: "catalog_table", Reason: "required"}
	case strings.TrimSpace(c.RatingsTable) == "":
		return &domain.ConfigError{Field: "ratings_table", Reason: "required"}
	case c.CatalogTable == c.RatingsTable:
		return &domain.ConfigError{Field: "ratings_table", Reason: "must differ from catalog_table"}
	}
	return nil
}

func knownDriver(d string) bool {
	for _, k := range drivers {
		if d == k {
			return true
		}
	}
	return false
}
