package reader

import (
	"context"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/flr/internal/config"
	"github.com/rzbill/flr/internal/runtime"
	"github.com/rzbill/flr/pkg/log"
)

// app is the state shared by every subcommand once the root has run its
// persistent setup.
type app struct {
	configPath string
	overrides  cfgpkg.Config
	noColor    bool

	cfg         cfgpkg.Config
	logger      log.Logger
	rt          *runtime.Runtime
	restoreStd  func()
	initialized bool
}

// Execute runs the flr command line with os.Args and releases the runtime
// afterwards, including when a command fails.
func Execute(ctx context.Context) error {
	return run(ctx, os.Args[1:], nil)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root, a := newRoot()
	root.SetArgs(args)
	if out != nil {
		root.SetOut(out)
		root.SetErr(out)
	}
	err := root.ExecuteContext(ctx)
	if terr := a.teardown(); err == nil {
		err = terr
	}
	return err
}

func newRoot() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:          "flr",
		Short:        "Read chunked flight recordings",
		Long:         "flr decodes chunked event recordings from single files or from a repository directory that a producer keeps rotating.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (.json, .yaml or .yml)")
	pf.StringVar(&a.overrides.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&a.overrides.LogFormat, "log-format", "", "Log format: text|json")
	pf.StringVar(&a.overrides.DataDir, "data-dir", "", "Checkpoint data directory (default: OS-specific application data directory)")
	pf.IntVar(&a.overrides.BlockSize, "block-size", 0, "Reader block size in bytes (0 = default)")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newPrintCommand(a),
		newSummaryCommand(a),
		newChunksCommand(a),
		newTailCommand(a),
		newCheckpointCommand(a),
	)
	return root, a
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := cfgpkg.Load(a.configPath)
	if err != nil {
		return err
	}
	cfgpkg.FromEnv(&cfg)
	if a.overrides.LogLevel != "" {
		cfg.LogLevel = a.overrides.LogLevel
	}
	if a.overrides.LogFormat != "" {
		cfg.LogFormat = a.overrides.LogFormat
	}
	if a.overrides.DataDir != "" {
		cfg.DataDir = a.overrides.DataDir
	}
	if cmd.Flags().Changed("block-size") {
		cfg.BlockSize = a.overrides.BlockSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.noColor {
		color.NoColor = true
	}

	logger, err := log.ApplyConfig(cfg.LogConfig())
	if err != nil {
		return err
	}
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.rt = cfg, logger, rt
	// Pebble and other libraries log through the standard logger.
	a.restoreStd = log.RedirectStdLog(logger)
	a.initialized = true
	return nil
}

func (a *app) teardown() error {
	if !a.initialized {
		return nil
	}
	a.initialized = false
	a.restoreStd()
	return a.rt.Close()
}
