// Package cmd implements the so24ctl command line.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/go24so/internal/config"
	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/Sternrassler/go24so/pkg/client"
	"github.com/Sternrassler/go24so/pkg/logging"
	"github.com/Sternrassler/go24so/pkg/resources"
)

// Version information set by the main package.
var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo is called by main to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// app carries the state shared by all subcommands of one invocation.
type app struct {
	cfgFile  string
	logLevel string
	output   string

	cfg    *config.Config
	logger zerolog.Logger
}

// Execute runs the command line with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "so24ctl",
		Short: "Command line client for the 24SevenOffice REST API",
		Long: `so24ctl talks to the 24SevenOffice REST API with client-credentials
authentication, client-side rate limiting, retries and response caching.

Configuration is read from so24.yaml (./ or $HOME/.config/so24) or --config,
and SO24_* environment variables, e.g. SO24_CLIENT_ID, SO24_CLIENT_SECRET,
SO24_ORGANIZATION_ID or SO24_API_BASE_URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./so24.yaml or $HOME/.config/so24/so24.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, off")
	flags.StringVarP(&a.output, "output", "o", formatAuto, "output format: auto, table, json, yaml")

	root.AddCommand(
		newVersionCommand(),
		newTokenCommand(a),
		newResourceCommand(a, "customers", "Manage customers", pickCustomers, customerTable),
		newInvoicesCommand(a),
		newResourceCommand(a, "products", "Manage products", pickProducts, productTable),
		newResourceCommand(a, "categories", "Manage product categories", pickCategories, categoryTable),
		newProxyCommand(a),
	)
	return root
}

// init loads configuration and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(false); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := parseFormat(a.output); err != nil {
		return err
	}

	lc := cfg.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()
	a.logger = logging.Setup(lc).With().Str("component", "cli").Logger()
	a.cfg = cfg
	return nil
}

// newClient builds an API client from the loaded configuration. The
// returned function releases the client and its Redis connection.
func (a *app) newClient() (*client.Client, func(), error) {
	if err := a.cfg.Validate(true); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rdb := a.cfg.NewRedisClient()
	c, err := a.buildClient(rdb)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		if err := c.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close client")
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to close redis client")
			}
		}
	}
	return c, cleanup, nil
}

func (a *app) buildClient(rdb *redis.Client) (*client.Client, error) {
	return client.New(a.cfg.ClientConfig(rdb, &a.logger))
}

// newResources builds the resource endpoints over a new client.
func (a *app) newResources() (*resources.Set, func(), error) {
	c, cleanup, err := a.newClient()
	if err != nil {
		return nil, nil, err
	}
	return resources.New(c), cleanup, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	version := versionInfo.Version
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(w, "so24ctl %s", version)
	if versionInfo.Commit != "" {
		fmt.Fprintf(w, " (commit %s, built %s)", versionInfo.Commit, versionInfo.BuildDate)
	}
	fmt.Fprintln(w)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch apierror.KindOf(err) {
	case apierror.KindValidation:
		return 2
	case apierror.KindAuth:
		return 3
	case apierror.KindNotFound:
		return 4
	case apierror.KindRateLimit:
		return 5
	default:
		return 1
	}
}

// Main runs the command line and exits.
func Main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
