package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/hubbub-chat/hubbub/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHelpText = `### hubbub commands ###
 -> /nick <name> [password] [new password] - claim, create or rename your identity
 -> /rooms - list all rooms
 -> /list <room> - list the online members of a room
 -> /who [name] - list all users, or the rooms of a matched user
 -> /join <room> - join a room
 -> /create <room> - create and join a new room
 -> /msg <user> <message> - send a private message
 -> /gravatar <email> - set your avatar from an e-mail address
 -> /leave [room] - leave the given or the active room
 -> /nudge [user] - nudge a user or the active room
 -> /addowner <user> <room> - grant room ownership
 -> /me <message> - emote in the active room
 -> /kick <user> - remove a user from the active room (owners only)`
)

// Config is the global configuration object which is filled via the
// configuration file.
type Config struct {
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	PresenceConfig    PresenceConfig    `mapstructure:"presence"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	OIDCConfigs       []OIDCConfig      `mapstructure:"oidc"`
	LogLevel          string            `mapstructure:"log_level"`
	HelpText          string            `mapstructure:"help_text"`
}

// HistoryConfig configures the size of the immediate event history that is
// kept in memory in a ring buffer and sent to newly connected clients.
type HistoryConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// PresenceConfig configures the idle windows (in minutes) after which an
// active user is marked inactive and an inactive user offline. The sweep
// runs on SweepSpec (a cron expression).
type PresenceConfig struct {
	InactiveAfterMin int    `mapstructure:"inactive_after_min"`
	OfflineAfterMin  int    `mapstructure:"offline_after_min"`
	SweepSpec        string `mapstructure:"sweep_spec"`
}

// An OIDCConfig object configures an OpenID Connect provider that can be used
// to pre-resolve an identity. Users provide an ID token and the name of the
// provider, the authentication is then performed via verification of the token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"`
}

type BuntDBConfig struct {
	Name string `mapstructure:"name"`
}

// PersistenceConfig configures the persistence backend. Type is one of
// "buntdb", "sqlite", "postgres"; sqlite/postgres use DSN, buntdb the nested
// block. No configuration means the service runs purely in memory.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`

	BuntDBConfig BuntDBConfig `mapstructure:"buntdb"`
	FlockPath    string       `mapstructure:"flock_path"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("help_text", defaultHelpText)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("HUBBUB")
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
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	globals.AppLogger.Info("config", "cfg", cfg)
	return &cfg, nil
}
