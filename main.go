// igen generates C++ interface headers from documented declarations.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/phobologic/igen/internal/config"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/logger"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// run executes the command line in args. It is the testable entry point.
func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	defer logger.Sync()
	return root.Execute()
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	stdout, stderr io.Writer

	configPath string
	jsonLogs   bool
	cfg        *config.Config
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "igen",
		Short: "Generate C++ interface headers from documented declarations",
		Long: `igen scans source groups for headers that include a generated interface,
extracts the documented free functions their sources declare, and writes
one interface header per entry, regenerating only what changed.

Typical use:
  igen collect            # write the manifest
  igen build -- -Iinclude # regenerate stale interfaces`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("igen {{.Version}}\n")

	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "config file")
	root.PersistentFlags().BoolVar(&a.jsonLogs, "json-logs", false, "log as JSON")

	root.AddCommand(
		a.collectCmd(),
		a.buildCmd(),
		a.watchCmd(),
		a.depsCmd(),
		a.initCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads the configuration and initializes logging for cmd.
func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "init" {
		// init writes the config file; a broken one must not stop it.
		return logger.Initialize(logger.Options{Output: a.stderr, JSON: a.jsonLogs})
	}

	cfg, err := config.Load(config.LoadOptions{
		Path:     a.configPath,
		Required: cmd.Flags().Changed("config"),
		Flags:    cmd.Flags(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	return logger.Initialize(logger.Options{
		Debug:  cfg.Debug,
		JSON:   cfg.JSONLogs,
		Output: a.stderr,
	})
}
