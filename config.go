/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultEnvFile = ".env"

type Config struct {
	adminPassword  string
	bind           string
	databaseURL    string
	dbMaxConns     int32
	logJSON        bool
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	title          string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	logger *zap.SugaredLogger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.adminPassword == "" {
		return errors.New("--admin-password must not be empty")
	}
	if c.dbMaxConns < 1 {
		return fmt.Errorf("invalid database connection limit (must be at least 1): %d", c.dbMaxConns)
	}
	if strings.TrimSpace(c.title) == "" {
		return errors.New("--title must not be empty")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// loadEnvFile populates the process environment from a dotenv file before
// viper reads it. Variables already set in the environment win.
func loadEnvFile() error {
	path := os.Getenv("SCOREBOARD_ENV_FILE")
	if path == "" {
		path = defaultEnvFile
	}

	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	envErr := loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("SCOREBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "scoreboard",
		Short:         "A live scoreboard for party challenges, served as a single webapp.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.adminPassword, "admin-password", "1456", "password that unlocks admin controls (env: SCOREBOARD_ADMIN_PASSWORD)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SCOREBOARD_BIND)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string; in-memory store when empty (env: SCOREBOARD_DATABASE_URL)")
	fs.Int32Var(&cfg.dbMaxConns, "db-max-conns", 10, "maximum open database connections (env: SCOREBOARD_DB_MAX_CONNS)")
	fs.BoolVar(&cfg.logJSON, "log-json", false, "emit logs as JSON (env: SCOREBOARD_LOG_JSON)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SCOREBOARD_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SCOREBOARD_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SCOREBOARD_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle award dialogs are discarded (env: SCOREBOARD_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.title, "title", "Roachman's 2025", "heading shown above the scoreboard (env: SCOREBOARD_TITLE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SCOREBOARD_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SCOREBOARD_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SCOREBOARD_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SCOREBOARD_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("scoreboard v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
