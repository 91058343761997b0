package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/agentic-research/etfkit/api"
	"github.com/agentic-research/etfkit/internal/etf"
	"github.com/agentic-research/etfkit/internal/ingest"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand.
type app struct {
	verbose      int
	metadataFile string
	configPath   string

	cfg    *api.Config
	log    *slog.Logger
	fs     billy.Filesystem
	loader *ingest.Loader
}

// NewRootCmd builds the etf command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "etf",
		Short:         "Inspect, filter and repair UNFCCC ETF metadata and country data files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "log debug messages")
	root.PersistentFlags().StringVarP(&a.metadataFile, "metadata-file", "m", "", "ETF metadata file (overrides metadata_file from the config)")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")

	root.AddCommand(a.metadataCmd(), a.dataCmd(), a.sectorsCmd(), a.serveCmd())
	return root
}

func (a *app) setup(stderr io.Writer) error {
	a.fs = osfs.New("/")

	configPath := a.configPath
	if configPath != "" {
		p, err := absPath(configPath)
		if err != nil {
			return err
		}
		configPath = p
	}
	cfg, err := api.Load(a.fs, configPath)
	if err != nil {
		return err
	}
	if a.metadataFile != "" {
		cfg.MetadataFile = a.metadataFile
	}
	a.cfg = cfg

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if a.verbose > 0 {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(stderr, opts)
	} else {
		handler = slog.NewTextHandler(stderr, opts)
	}
	a.log = slog.New(handler)

	a.loader = ingest.NewLoader(a.fs, a.log)
	return nil
}

func (a *app) etfOptions() []etf.Option {
	return []etf.Option{etf.WithLogger(a.log), etf.WithConfig(a.cfg)}
}

// loadMetadata reads the configured metadata file.
func (a *app) loadMetadata() (*etf.Metadata, error) {
	if a.cfg.MetadataFile == "" {
		return nil, fmt.Errorf("no metadata file: pass --metadata-file or set metadata_file in the config")
	}
	path, err := absPath(a.cfg.MetadataFile)
	if err != nil {
		return nil, err
	}
	tree, err := a.loader.Load(path)
	if err != nil {
		return nil, err
	}
	return etf.NewMetadata(tree, a.etfOptions()...)
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
