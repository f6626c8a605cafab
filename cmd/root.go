package cmd

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/connector/adzuna"
	"github.com/spigell/job-aggregator/internal/connector/headhunter"
	"github.com/spigell/job-aggregator/internal/connector/jooble"
	"github.com/spigell/job-aggregator/internal/connector/weworkremotely"
	"github.com/spigell/job-aggregator/internal/filtering"
	"github.com/spigell/job-aggregator/internal/listing"
	"github.com/spigell/job-aggregator/internal/scheduler"
	"github.com/spigell/job-aggregator/internal/server"
)

const (
	app       = "job-aggregator"
	envPrefix = "JOBAGG"
	// defaultUserID owns configurations and saved listings created from the cli.
	defaultUserID = "local"
	// Each cli invocation is a new process, so state has to live on disk by default.
	defaultStorageDriver = "sqlite"
)

type Config struct {
	UserID    string            `mapstructure:"user-id"`
	Server    server.Options    `mapstructure:"server"`
	Sources   SourcesConfig     `mapstructure:"sources"`
	Cache     CacheConfig       `mapstructure:"cache"`
	Storage   StorageConfig     `mapstructure:"storage"`
	AI        ai.Options        `mapstructure:"ai"`
	Scheduler *scheduler.Config `mapstructure:"scheduler"`
	Search    SearchConfig      `mapstructure:"search"`
}

// SourcesConfig enables a connector when its section is present.
type SourcesConfig struct {
	Timeout        time.Duration          `mapstructure:"timeout"`
	Jooble         *JoobleConfig          `mapstructure:"jooble"`
	Adzuna         *AdzunaConfig          `mapstructure:"adzuna"`
	HeadHunter     *HeadHunterConfig      `mapstructure:"headhunter"`
	WeWorkRemotely *weworkremotely.Config `mapstructure:"weworkremotely"`
}

type JoobleConfig struct {
	jooble.Config `mapstructure:",squash"`
	APIKeyFile    string `mapstructure:"api-key-file"`
}

type AdzunaConfig struct {
	adzuna.Config `mapstructure:",squash"`
	AppKeyFile    string `mapstructure:"app-key-file"`
}

type HeadHunterConfig struct {
	headhunter.Config `mapstructure:",squash"`
	TokenFile         string `mapstructure:"token-file"`
}

type CacheConfig struct {
	RedisURL string        `mapstructure:"redis-url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type StorageConfig struct {
	// Driver is one of sqlite (default), postgres or memory. Path defaults to an xdg data file.
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database-url"`
}

// SearchConfig drives the interactive search command.
type SearchConfig struct {
	Criteria listing.SearchCriteria `mapstructure:",squash"`
	Sources  []string               `mapstructure:"sources"`
	Filter   filtering.Criteria     `mapstructure:"filter"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "job-aggregator searches several job boards at once, filters the results and classifies them with AI",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"sources.jooble.api-key":        "JOOBLE_API_KEY",
		"sources.adzuna.app-key":        "ADZUNA_APP_KEY",
		"sources.headhunter.token-file": "HH_TOKEN_FILE",
		"storage.database-url":          "DATABASE_URL",
		"cache.redis-url":               "REDIS_URL",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("user-id", defaultUserID)
	viper.SetDefault("storage.driver", defaultStorageDriver)
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("cache.ttl", 15*time.Minute)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is job-aggregator.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("user", "", "user id owning ai configurations and saved listings (default \"local\")")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Everything has a default or an environment variable, so only a broken or explicit file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}
	if config == nil {
		config = &Config{}
	}
	if strings.TrimSpace(config.UserID) == "" {
		config.UserID = defaultUserID
	}

	return config, nil
}
