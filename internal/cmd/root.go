package cmd

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/blocks/internal/config"
	"github.com/stateful/blocks/internal/config/autoconfig"
	"github.com/stateful/blocks/internal/log"
)

var (
	fChdir      string
	fConfigFile string
	fVerbose    bool
)

func Root() *cobra.Command {
	cmd := cobra.Command{
		Use:           "blocks",
		Short:         "Render, extract and maintain block documents",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if fChdir == "" || fChdir == "." {
				return nil
			}
			return errors.WithStack(os.Chdir(fChdir))
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			log.Flush()
		},
	}

	pflags := cmd.PersistentFlags()

	pflags.StringVar(&fChdir, "chdir", ".", "Switch to a different working directory before executing the command.")
	pflags.StringVar(&fConfigFile, "config", "", "Configuration file. By default blocks.{yaml,yml,toml} files are looked up in the working directory.")
	pflags.BoolVarP(&fVerbose, "verbose", "v", false, "Log debug messages to stderr.")

	cmd.AddCommand(renderCmd())
	cmd.AddCommand(extractCmd())
	cmd.AddCommand(importCmd())
	cmd.AddCommand(idsCmd())
	cmd.AddCommand(schemaCmd())
	cmd.AddCommand(listCmd())

	return &cmd
}

// newBuilder returns the dependency container configured by the global flags.
func newBuilder() (*autoconfig.Builder, error) {
	b := autoconfig.NewBuilder()
	if fConfigFile == "" && !fVerbose {
		return b, nil
	}

	path, verbose := fConfigFile, fVerbose
	err := b.Decorate(func(cfg *config.Config) (*config.Config, error) {
		if path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			if cfg, err = config.Parse(filepath.Base(path), data); err != nil {
				return nil, errors.Wrapf(err, "failed to parse %s", path)
			}
		}
		if verbose {
			cfg.Log.Enabled = true
			cfg.Log.Verbose = true
		}
		return cfg, nil
	})
	return b, err
}
