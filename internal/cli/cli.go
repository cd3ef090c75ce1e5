// Package cli implements the exodump command-line interface.
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eunmann/exocdf/internal/logctx"
	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/humanfmt"
	"github.com/eunmann/exocdf/pkg/logging"
	"github.com/eunmann/exocdf/pkg/membudget"
	"github.com/eunmann/exocdf/pkg/memdiag"
	"github.com/eunmann/exocdf/pkg/source"
)

// Configuration keys. Each can be set in the TOML config file, by flag, or
// through an EXODUMP_* environment variable (EXODUMP_LOG_DEBUG for
// log.debug).
const (
	keyConfig      = "config"
	keyDebug       = "log.debug"
	keyHuman       = "log.human"
	keyRegion      = "s3.region"
	keyMaxObject   = "input.max-object"
	keyMemory      = "input.memory"
	keyCompression = "export.compression"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	cfg     *viper.Viper
	root    *cobra.Command
	budget  *membudget.Budget
	tracker *memdiag.Tracker
}

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	return RunContext(context.Background(), args)
}

// RunContext executes the CLI with a caller-supplied context.
func RunContext(ctx context.Context, args []string) error {
	a := newApp()
	a.root.SetArgs(args)
	return a.execute(ctx)
}

func (a *app) execute(ctx context.Context) error {
	err := a.root.ExecuteContext(ctx)
	if a.tracker != nil {
		a.tracker.Stop(a.budget)
	}
	return err
}

func newApp() *app {
	a := &app{cfg: viper.New()}
	a.cfg.SetEnvPrefix("EXODUMP")
	a.cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.cfg.AutomaticEnv()
	a.cfg.SetDefault(keyMaxObject, "4GiB")
	a.cfg.SetDefault(keyCompression, "snappy")

	a.root = &cobra.Command{
		Use:   "exodump",
		Short: "Inspect, summarize and export NetCDF classic and ExodusII files.",
		Long: `exodump reads NetCDF classic (CDF-1 and CDF-2) files and the ExodusII
finite-element models stored in them.

Inputs may be a local path, "-" for standard input, or s3://bucket/key.
Configuration comes from a TOML file given by --config, from flags, and from
environment variables named EXODUMP_<KEY>, for example EXODUMP_LOG_DEBUG=true
or EXODUMP_INPUT_MEMORY=2GiB.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.startup(cmd)
		},
	}

	pf := a.root.PersistentFlags()
	pf.String("config", "", "TOML configuration file")
	pf.Bool("debug", false, "log at debug level")
	pf.Bool("human", false, "human-readable log output")
	pf.String("region", "", "AWS region for s3:// inputs")
	pf.String("max-object", "4GiB", "largest input staged in memory (stdin, s3://)")
	pf.String("memory", "", "combined size of inputs staged in memory (default half of RAM)")
	a.bind(keyConfig, pf.Lookup("config"))
	a.bind(keyDebug, pf.Lookup("debug"))
	a.bind(keyHuman, pf.Lookup("human"))
	a.bind(keyRegion, pf.Lookup("region"))
	a.bind(keyMaxObject, pf.Lookup("max-object"))
	a.bind(keyMemory, pf.Lookup("memory"))

	a.root.AddCommand(
		a.infoCmd(),
		a.dumpCmd(),
		a.statsCmd(),
		a.exportCmd(),
		a.generateCmd(),
	)
	return a
}

func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.cfg.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

// startup reads the config file, if any, and configures logging.
func (a *app) startup(cmd *cobra.Command) error {
	if path := a.cfg.GetString(keyConfig); path != "" {
		a.cfg.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			a.cfg.SetConfigType("toml")
		}
		if err := a.cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	debug := a.cfg.GetBool(keyDebug)
	logging.Init(logging.Config{
		Debug: debug,
		Human: a.cfg.GetBool(keyHuman),
		Out:   cmd.ErrOrStderr(),
	})

	log := logging.WithComponent("cli").With().Str("command", cmd.Name()).Logger()
	if debug {
		a.tracker = memdiag.NewTracker(log, 5*time.Second)
		a.tracker.Start()
	}
	cmd.SetContext(logctx.WithLogger(cmd.Context(), log))
	return nil
}

// sourceOptions resolves the input limits. The memory budget is shared by
// every input of the invocation.
func (a *app) sourceOptions(cmd *cobra.Command) (source.Options, error) {
	maxObject, err := membudget.ParseSize(a.cfg.GetString(keyMaxObject))
	if err != nil {
		return source.Options{}, fmt.Errorf("%s: %w", keyMaxObject, err)
	}
	if a.budget == nil {
		budget := membudget.FromSystem()
		if s := a.cfg.GetString(keyMemory); s != "" {
			n, err := membudget.ParseSize(s)
			if err != nil {
				return source.Options{}, fmt.Errorf("%s: %w", keyMemory, err)
			}
			budget = membudget.New(n, membudget.SourceConfig)
		}
		a.budget = budget
		log := logctx.FromContext(cmd.Context())
		log.Debug().
			Str("budget", humanfmt.Bytes(int64(a.budget.Total()))).
			Str("source", string(a.budget.Source())).
			Msg("input memory budget")
	}

	return source.Options{
		Region:   a.cfg.GetString(keyRegion),
		MaxBytes: int64(maxObject),
		Budget:   a.budget,
		Stdin:    cmd.InOrStdin(),
	}, nil
}

// open opens one input read-only.
func (a *app) open(cmd *cobra.Command, uri string) (*cdf.File, error) {
	opts, err := a.sourceOptions(cmd)
	if err != nil {
		return nil, err
	}
	f, err := source.Open(logctx.WithStr(cmd.Context(), "input", uri), uri, opts)
	if err != nil {
		return nil, err
	}
	return f, nil
}
