// Package config loads igen settings from igen.yaml, IGEN_* environment
// variables, a .env file and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/igen/internal/collect"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/model"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "igen.yaml"

// EnvPrefix prefixes every environment override, e.g. IGEN_FORCE=1.
const EnvPrefix = "IGEN"

// Config is the effective configuration.
type Config struct {
	SourceBasepath     string              `mapstructure:"source_basepath" yaml:"source_basepath"`
	Groups             []collect.GroupRoot `mapstructure:"groups" yaml:"groups"`
	Extensions         []string            `mapstructure:"extensions" yaml:"extensions"`
	PrimaryExtension   string              `mapstructure:"primary_extension" yaml:"primary_extension"`
	GeneratedSuffix    string              `mapstructure:"generated_suffix" yaml:"generated_suffix"`
	DirectiveLineLimit int                 `mapstructure:"directive_line_limit" yaml:"directive_line_limit"`
	Ignore             []string            `mapstructure:"ignore" yaml:"ignore"`

	TmpDir   string `mapstructure:"tmp_dir" yaml:"tmp_dir"`
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
	Cache    string `mapstructure:"cache" yaml:"cache"`
	Template string `mapstructure:"template" yaml:"template"`
	DocDir   string `mapstructure:"doc_dir" yaml:"doc_dir"`

	// ParserFlags is a shell-quoted string of front-end flags.
	ParserFlags     string   `mapstructure:"parser_flags" yaml:"parser_flags"`
	FlagDenylist    []string `mapstructure:"flag_denylist" yaml:"flag_denylist"`
	PassAnnotations []string `mapstructure:"pass_annotations" yaml:"pass_annotations"`

	Jobs     int  `mapstructure:"jobs" yaml:"jobs"`
	Force    bool `mapstructure:"force" yaml:"force"`
	Check    bool `mapstructure:"check" yaml:"check"`
	Debug    bool `mapstructure:"debug" yaml:"debug"`
	JSONLogs bool `mapstructure:"json_logs" yaml:"json_logs"`
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source_basepath", "")
	v.SetDefault("groups", []map[string]any{})
	v.SetDefault("extensions", collect.DefaultExtensions)
	v.SetDefault("primary_extension", collect.DefaultPrimaryExtension)
	v.SetDefault("generated_suffix", collect.DefaultGeneratedSuffix)
	v.SetDefault("directive_line_limit", collect.DefaultLineLimit)
	v.SetDefault("ignore", []string{})

	v.SetDefault("tmp_dir", "tmp")
	v.SetDefault("manifest", "") // <tmp_dir>/igen_users
	v.SetDefault("cache", "")    // <tmp_dir>/igen_cache
	v.SetDefault("template", "") // embedded default
	v.SetDefault("doc_dir", "doc/gen_interface")

	v.SetDefault("parser_flags", "")
	v.SetDefault("flag_denylist", []string{"-MMD", "-MP"})
	v.SetDefault("pass_annotations", []string{model.AnnotationInterface, model.AnnotationPrivate})

	v.SetDefault("jobs", 0) // GOMAXPROCS
	v.SetDefault("force", false)
	v.SetDefault("check", false)
	v.SetDefault("debug", false)
	v.SetDefault("json_logs", false)
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"force":     "force",
	"check":     "check",
	"debug":     "debug",
	"json-logs": "json_logs",
	"jobs":      "jobs",
	"manifest":  "manifest",
	"cache":     "cache",
	"template":  "template",
	"doc-dir":   "doc_dir",
}

// LoadOptions says where configuration comes from.
type LoadOptions struct {
	// Path is the YAML config file. Empty means DefaultPath.
	Path string
	// Required fails the load when Path does not exist. A missing default
	// file is not an error.
	Required bool
	// Flags are bound over file and environment values when set.
	Flags *pflag.FlagSet
	// EnvFile is loaded before the environment is read. Empty means ".env";
	// a missing file is ignored.
	EnvFile string
}

// Load reads the configuration. Precedence, lowest first: defaults, config
// file, environment, flags that were set.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(err, "loading %s", envFile)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	} else if opts.Required || !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(err, "config %s", path)
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "binding flag --%s", name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return &cfg, nil
}

// ManifestPath is the manifest location, defaulting under TmpDir.
func (c *Config) ManifestPath() string {
	if c.Manifest != "" {
		return c.Manifest
	}
	return filepath.Join(c.TmpDir, "igen_users")
}

// CachePath is the build cache location, defaulting under TmpDir.
func (c *Config) CachePath() string {
	if c.Cache != "" {
		return c.Cache
	}
	return filepath.Join(c.TmpDir, "igen_cache")
}

// GroupRoots returns the configured group roots.
func (c *Config) GroupRoots() []collect.GroupRoot {
	return c.Groups
}

// CollectOptions returns the collector settings.
func (c *Config) CollectOptions() collect.Options {
	return collect.Options{
		Roots:            c.GroupRoots(),
		SourceBasepath:   c.SourceBasepath,
		Extensions:       c.Extensions,
		PrimaryExtension: c.PrimaryExtension,
		GeneratedSuffix:  c.GeneratedSuffix,
		LineLimit:        c.DirectiveLineLimit,
		Jobs:             c.Jobs,
		Ignore:           c.Ignore,
	}
}

// FrontendFlags returns the parser flags: the syntax-only prefix, the
// configured parser_flags and extra, minus every flag on the denylist.
func (c *Config) FrontendFlags(extra []string) ([]string, error) {
	configured, err := shellquote.Split(c.ParserFlags)
	if err != nil {
		return nil, errors.Wrapf(err, "parser_flags %q", c.ParserFlags)
	}

	deny := make(map[string]struct{}, len(c.FlagDenylist))
	for _, f := range c.FlagDenylist {
		deny[f] = struct{}{}
	}

	flags := []string{"-fsyntax-only", "-DIGEN_RUNNING"}
	for _, f := range append(configured, extra...) {
		if _, skip := deny[f]; skip {
			continue
		}
		flags = append(flags, f)
	}
	return flags, nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encoding config")
	}
	return out, nil
}
