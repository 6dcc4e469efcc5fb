// Package config merges defaults, the config file, GOSCT_* environment
// variables and command line flags.
package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/foxboron/go-uefi-sct/sct/driver"
	"github.com/foxboron/go-uefi-sct/sct/fixture"
	"github.com/foxboron/go-uefi-sct/sct/report"
)

const EnvPrefix = "GOSCT"

// Device backends.
const (
	Efivarfs  = "efivarfs"
	Simulator = "sim"
	TPM       = "tpm"
	None      = "none"
)

type Device struct {
	// Variables is efivarfs or sim.
	Variables string `mapstructure:"variables"`
	// TCG2 is tpm, sim or none.
	TCG2 string `mapstructure:"tcg2"`
}

type Report struct {
	Format string `mapstructure:"format"`
	// Output is a file path, empty means stdout.
	Output string `mapstructure:"output"`
}

type Log struct {
	Format  string `mapstructure:"format"`
	Verbose bool   `mapstructure:"verbose"`
}

type EfivarfsOptions struct {
	UnsetImmutable bool `mapstructure:"unset_immutable"`
}

type Config struct {
	FixtureDir     string          `mapstructure:"fixture_dir"`
	MaxFixtureSize int64           `mapstructure:"max_fixture_size"`
	Level          string          `mapstructure:"level"`
	Device         Device          `mapstructure:"device"`
	Report         Report          `mapstructure:"report"`
	Log            Log             `mapstructure:"log"`
	Efivarfs       EfivarfsOptions `mapstructure:"efivarfs"`
}

// SetDefaults registers every key, which also makes them visible to the
// environment lookup.
func SetDefaults(v *viper.Viper) {
	// Relative to the working directory, the layout of an installed test profile.
	v.SetDefault("fixture_dir", "Dependency/SecureBootBBTest")
	v.SetDefault("max_fixture_size", fixture.DefaultMaxSize)
	v.SetDefault("level", driver.LevelDefault.String())
	v.SetDefault("device.variables", Efivarfs)
	v.SetDefault("device.tcg2", TPM)
	v.SetDefault("report.format", string(report.Text))
	v.SetDefault("report.output", "")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.verbose", false)
	v.SetDefault("efivarfs.unset_immutable", false)
}

// New returns a viper instance reading GOSCT_* variables, with "." in keys
// mapped to "_".
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	if fs != nil {
		v.SetFs(fs)
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, when set, and decodes the merged configuration.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", file)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func oneOf(key, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return errors.Errorf("%s: %q is not one of %s", key, val, strings.Join(allowed, ", "))
}

func (c *Config) Validate() error {
	if _, err := driver.ParseLevel(c.Level); err != nil {
		return errors.Wrap(err, "level")
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		return errors.Wrap(err, "report.format")
	}
	if err := oneOf("device.variables", c.Device.Variables, Efivarfs, Simulator); err != nil {
		return err
	}
	if err := oneOf("device.tcg2", c.Device.TCG2, TPM, Simulator, None); err != nil {
		return err
	}
	if err := oneOf("log.format", c.Log.Format, "text", "json"); err != nil {
		return err
	}
	if c.MaxFixtureSize <= 0 {
		return errors.Errorf("max_fixture_size: must be positive, got %d", c.MaxFixtureSize)
	}
	return nil
}

func (c *Config) RunLevel() driver.Level {
	l, _ := driver.ParseLevel(c.Level)
	return l
}

func (c *Config) ReportFormat() report.Format {
	f, _ := report.ParseFormat(c.Report.Format)
	return f
}

// Logger builds the structured logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.Log.Verbose {
		opts.Level = slog.LevelDebug
	}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
