// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"

	"github.com/ManuGH/myth2dsv/internal/config"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/version"
	"github.com/spf13/cobra"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	host       string
	logLevel   string
	logOutput  io.Writer

	loader *config.Loader
	cfg    config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "myth2dsv",
		Short:         "Transcode MythTV recordings for handheld playback",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&c.host, "host", "", "MythTV backend host, overrides backend.host")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newListCmd(c),
		newEncodeCmd(c),
		newThumbsCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	c.loader = config.NewLoader(c.configPath)
	cfg, err := c.loader.Load()
	if err != nil {
		return err
	}
	if c.host != "" {
		cfg.Backend.Host = c.host
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	c.cfg = cfg

	out := c.logOutput
	if out == nil {
		out = cmd.ErrOrStderr()
	}
	xglog.Configure(xglog.Config{
		Level:   cfg.Log.Level,
		Output:  out,
		Service: cfg.Log.Service,
		Version: version.Version,
	})
	return nil
}

// requireHost returns the configured backend host or a usage error.
func (c *cli) requireHost() (string, error) {
	if c.cfg.Backend.Host == "" {
		return "", fmt.Errorf("no backend host: pass --host or set backend.host")
	}
	return c.cfg.Backend.Host, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
