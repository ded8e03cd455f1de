package config

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chathaven/haven-client/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultDebounceMs      = 2000
	defaultRecentRoomsSize = 16
	defaultOrigin          = "app://haven-client"
)

// Config is the global configuration object which is filled via the
// configuration file, environment (prefix HAVEN) and command-line flags.
type Config struct {
	ServerConfig      ServerConfig      `mapstructure:"server"`
	AuthConfig        AuthConfig        `mapstructure:"auth"`
	UserConfig        UserConfig        `mapstructure:"user"`
	TypingConfig      TypingConfig      `mapstructure:"typing"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	FilterConfigs     []FilterConfig    `mapstructure:"filter"`
	RecentRoomsConfig RecentRoomsConfig `mapstructure:"recent_rooms"`
	LogLevel          string            `mapstructure:"log_level"`
}

// ServerConfig points at the chat backend's websocket endpoint.
type ServerConfig struct {
	Url    string `mapstructure:"url"`
	Origin string `mapstructure:"origin"`
}

// AuthConfig configures the credential source for the connection handshake.
// Exactly one of Token, TokenCommand or OIDCConfig should be set; if none is,
// the session cannot authenticate.
type AuthConfig struct {
	Token        string     `mapstructure:"token"`
	TokenCommand string     `mapstructure:"token_command"`
	OIDCConfig   OIDCConfig `mapstructure:"oidc"`
}

// An OIDCConfig object configures an OpenID Connect provider from which the
// short-lived connection credential is obtained via client credentials.
type OIDCConfig struct {
	ProviderUrl  string   `mapstructure:"provider_url"`
	ClientId     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
}

type UserConfig struct {
	DisplayName string `mapstructure:"display_name"`
}

// TypingConfig configures the local typing debounce window.
type TypingConfig struct {
	DebounceMs int `mapstructure:"debounce_ms"`
}

func (c TypingConfig) Debounce() time.Duration {
	ms := c.DebounceMs
	if ms <= 0 {
		ms = defaultDebounceMs
	}
	return time.Duration(ms) * time.Millisecond
}

// BuntDBConfig configures the BuntDB file storage backed session store.
type BuntDBConfig struct {
	Name string `mapstructure:"name"`
}

// PersistenceConfig configures the session-record backends. Supported types
// are "buntdb", "sqlite" and "postgres"; an empty type disables persistence.
type PersistenceConfig struct {
	Type      string       `mapstructure:"type"`
	DSN       string       `mapstructure:"dsn"`
	FlockPath string       `mapstructure:"flock_path"`
	BuntDB    BuntDBConfig `mapstructure:"buntdb"`
}

// FilterConfig is one message filter rule. Action is "suppress" or
// "highlight", Expression is evaluated against each inbound message.
type FilterConfig struct {
	Action     string `mapstructure:"action"`
	Expression string `mapstructure:"expression"`
}

type RecentRoomsConfig struct {
	Size int `mapstructure:"size"`
}

func (c RecentRoomsConfig) CacheSize() int {
	if c.Size <= 0 {
		return defaultRecentRoomsSize
	}
	return c.Size
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("server-url", "s", "", "websocket endpoint of the chat backend")
	flagSet.StringP("display-name", "n", "", "display name used when joining rooms")
	flagSet.StringP("log-level", "l", "", "log level")
	return flagSet
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	viper.SetDefault("typing.debounce_ms", defaultDebounceMs)
	viper.SetDefault("recent_rooms.size", defaultRecentRoomsSize)
	viper.SetDefault("server.origin", defaultOrigin)
	for flagName, key := range map[string]string{
		"server-url":   "server.url",
		"display-name": "user.display_name",
		"log-level":    "log_level",
	} {
		if f := flagSet.Lookup(flagName); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				globals.AppLogger.Error("could not bind flag (ignored)", "flag", flagName, "error", err)
			}
		}
	}
	viper.SetEnvPrefix("HAVEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err := viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}

// Validate checks the parts of the configuration the interactive client
// cannot run without.
func (cfg *Config) Validate() error {
	if cfg.ServerConfig.Url == "" {
		return fmt.Errorf("no server url configured")
	}
	return nil
}
