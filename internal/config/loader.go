package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix prefixes every environment variable read by walcheck.
const EnvPrefix = "WALCHECK"

// Config represents the raw configuration, before validation.
type Config struct {
	Include  []string `mapstructure:"include"   yaml:"include,omitempty"`
	Stanza   string   `mapstructure:"stanza"    yaml:"stanza"`
	LogLevel string   `mapstructure:"log-level" yaml:"log-level"`

	Pgbackrest PgbackrestConfig `mapstructure:"pgbackrest" yaml:"pgbackrest"`
	Repo       RepoConfig       `mapstructure:"repo"       yaml:"repo"`
	Vault      VaultConfig      `mapstructure:"vault"      yaml:"vault"`
	Archives   ArchivesConfig   `mapstructure:"archives"   yaml:"archives"`
	Retention  RetentionConfig  `mapstructure:"retention"  yaml:"retention"`
	Output     OutputConfig     `mapstructure:"output"     yaml:"output"`
}

// PgbackrestConfig controls how the backup tool is invoked.
type PgbackrestConfig struct {
	Bin     string        `mapstructure:"bin"     yaml:"bin"`
	Config  string        `mapstructure:"config"  yaml:"config,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RepoConfig locates the repository; Host switches listing to SSH.
type RepoConfig struct {
	Path                  string        `mapstructure:"path"                     yaml:"path"`
	Host                  string        `mapstructure:"host"                     yaml:"host,omitempty"`
	User                  string        `mapstructure:"user"                     yaml:"user,omitempty"`
	Port                  int           `mapstructure:"port"                     yaml:"port,omitempty"`
	IdentityFile          string        `mapstructure:"identity-file"            yaml:"identity-file,omitempty"`
	KnownHosts            string        `mapstructure:"known-hosts"              yaml:"known-hosts,omitempty"`
	InsecureIgnoreHostKey bool          `mapstructure:"insecure-ignore-host-key" yaml:"insecure-ignore-host-key,omitempty"`
	Timeout               time.Duration `mapstructure:"timeout"                  yaml:"timeout"`
}

// VaultConfig holds connection settings for HashiCorp Vault.
type VaultConfig struct {
	Address   string `mapstructure:"address"    yaml:"address,omitempty"`
	Token     string `mapstructure:"token"      yaml:"token,omitempty"`
	RoleID    string `mapstructure:"role-id"    yaml:"role-id,omitempty"`
	RoleName  string `mapstructure:"role-name"  yaml:"role-name,omitempty"`
	SSHSecret string `mapstructure:"ssh-secret" yaml:"ssh-secret,omitempty"`
}

// ArchivesConfig holds the archives check thresholds as written by the user.
type ArchivesConfig struct {
	MaxAge      string `mapstructure:"max-age"      yaml:"max-age,omitempty"`
	IgnoreSince string `mapstructure:"ignore-since" yaml:"ignore-since,omitempty"`
	WALSegSize  string `mapstructure:"wal-segsize"  yaml:"wal-segsize"`
	WALSize     string `mapstructure:"wal-size"     yaml:"wal-size"`
}

// RetentionConfig holds the retention check thresholds.
type RetentionConfig struct {
	Full   int    `mapstructure:"full"    yaml:"full,omitempty"`
	MaxAge string `mapstructure:"max-age" yaml:"max-age,omitempty"`
}

// OutputConfig selects the report format and optional metrics file.
type OutputConfig struct {
	Format             string `mapstructure:"format"              yaml:"format"`
	PrometheusTextfile string `mapstructure:"prometheus-textfile" yaml:"prometheus-textfile,omitempty"`
}

// FlagKeys maps command line flags onto configuration keys.
var FlagKeys = map[string]string{
	"stanza":                   "stanza",
	"log-level":                "log-level",
	"pgbackrest-bin":           "pgbackrest.bin",
	"pgbackrest-config":        "pgbackrest.config",
	"pgbackrest-timeout":       "pgbackrest.timeout",
	"repo-path":                "repo.path",
	"repo-host":                "repo.host",
	"repo-host-user":           "repo.user",
	"repo-host-port":           "repo.port",
	"identity-file":            "repo.identity-file",
	"known-hosts":              "repo.known-hosts",
	"insecure-ignore-host-key": "repo.insecure-ignore-host-key",
	"ssh-timeout":              "repo.timeout",
	"vault-address":            "vault.address",
	"vault-ssh-secret":         "vault.ssh-secret",
	"max-archives-age":         "archives.max-age",
	"ignore-archived-since":    "archives.ignore-since",
	"wal-segsize":              "archives.wal-segsize",
	"wal-size":                 "archives.wal-size",
	"retention-full":           "retention.full",
	"retention-age":            "retention.max-age",
	"output":                   "output.format",
	"prometheus-textfile":      "output.prometheus-textfile",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("include", []string{})
	v.SetDefault("stanza", "")
	v.SetDefault("log-level", "warn")
	v.SetDefault("pgbackrest.bin", "pgbackrest")
	v.SetDefault("pgbackrest.config", "")
	v.SetDefault("pgbackrest.timeout", 30*time.Second)
	v.SetDefault("repo.path", "/var/lib/pgbackrest")
	v.SetDefault("repo.host", "")
	v.SetDefault("repo.user", "")
	v.SetDefault("repo.port", 22)
	v.SetDefault("repo.identity-file", "")
	v.SetDefault("repo.known-hosts", "")
	v.SetDefault("repo.insecure-ignore-host-key", false)
	v.SetDefault("repo.timeout", 10*time.Second)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.role-id", "")
	v.SetDefault("vault.role-name", "")
	v.SetDefault("vault.ssh-secret", "")
	v.SetDefault("archives.max-age", "")
	v.SetDefault("archives.ignore-since", "")
	v.SetDefault("archives.wal-segsize", "16MB")
	v.SetDefault("archives.wal-size", "4GB")
	v.SetDefault("retention.full", 0)
	v.SetDefault("retention.max-age", "")
	v.SetDefault("output.format", "nagios")
	v.SetDefault("output.prometheus-textfile", "")
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment without overriding variables that are already set.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: env file %s: %v", ErrLoadConfig, path, err)
	}
	return nil
}

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, overlays WALCHECK_* environment variables and
// the flags of fs, and unmarshals into the Config struct. path may be
// empty; fs may be nil.
func (c *Config) Load(path string, fs *pflag.FlagSet) error {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range FlagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("%w: bind flag %s: %v", ErrLoadConfig, name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		// Read base configuration
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
		}

		// Merge include files (if any)
		for _, inc := range v.GetStringSlice("include") {
			data, err := os.ReadFile(inc)
			if err != nil {
				return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
			}
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
			}
		}
	}

	// Unmarshal into the Config struct
	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return nil
}
