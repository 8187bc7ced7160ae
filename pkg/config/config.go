// Package config loads the polybuild settings from polybuild.toml and POLYBUILD_* environment variables.
package config

import (
	"os"
	"path/filepath"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// FileName is the name of the config file. It's expected next to the task script.
const FileName = "polybuild.toml"

// ReleaseEnv enables release builds when it's present in the environment, regardless of its value
const ReleaseEnv = "RELEASE"

// Config describes all configuration options
type Config struct {
	Script string `default:"tasks.star" usage:"Name of the task script which is searched for in the current directory and its parents"`
	Log    struct {
		Level string `default:"info" usage:"Minimum level of messages to print (debug, info, warn or error)"`
		JSON  bool   `default:"false" usage:"Output JSONND instead of pretty console messages"`
	}
	Cache struct {
		Dir    string `default:".polybuild" usage:"Cache directory, relative to the project root"`
		Tasks  bool   `default:"true" usage:"Cache parsed task scripts"`
		Minify bool   `default:"true" usage:"Cache minified bundles"`
	}
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. Missing
// files are skipped.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{FileName}
	}

	existing := make([]string, 0, len(files))
	for _, file := range files {
		if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
			existing = append(existing, file)
		}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "POLYBUILD",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            existing,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the config from the given files (polybuild.toml by default) and the
// environment and validates the result.
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindFile returns the closest config file in dir or one of its parents. The result is empty if
// there is none.
func FindFile(dir string) string {
	path := dir
	for {
		file := filepath.Join(path, FileName)
		info, err := os.Stat(file)
		if err == nil && info.Mode().IsRegular() {
			return file
		}

		parent := filepath.Dir(path)
		if parent == path {
			return ""
		}
		path = parent
	}
}

// LoadFrom reads the config file closest to dir (see FindFile) and the environment. This way
// the project's config applies no matter which of its subdirectories polybuild runs in.
func LoadFrom(dir string) (*Config, error) {
	file := FindFile(dir)
	if file == "" {
		// the file doesn't exist so only the defaults and the environment apply
		file = filepath.Join(dir, FileName)
	}
	return Load(file)
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.Script == "" {
		return eris.New("script must not be empty")
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// ApplyFlags overrides config values with the matching command line flags (log-level,
// log-json) if they were passed.
func (cfg *Config) ApplyFlags(flags *pflag.FlagSet) error {
	if flag := flags.Lookup("log-level"); flag != nil && flag.Changed {
		cfg.Log.Level = flag.Value.String()
	}

	if flag := flags.Lookup("log-json"); flag != nil && flag.Changed {
		value, err := flags.GetBool("log-json")
		if err != nil {
			return err
		}
		cfg.Log.JSON = value
	}

	return cfg.Validate()
}

// ReleaseMode reports whether the RELEASE environment variable is set
func ReleaseMode() bool {
	_, present := os.LookupEnv(ReleaseEnv)
	return present
}
