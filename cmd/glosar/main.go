package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(newCommand(os.Stdin, os.Stdout, os.Stderr))
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot(c *command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.SetIn(c.stdin)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	root.AddCommand(
		createRunCommand(c, globalFlags),
		createControlCommand(c, globalFlags, "pause", "Pause the running batch after the current guide"),
		createControlCommand(c, globalFlags, "resume", "Resume a paused batch"),
		createControlCommand(c, globalFlags, "skip", "Skip the guide the paused batch is stopped at"),
		createControlCommand(c, globalFlags, "stop", "Stop the running batch"),
		createStatusCommand(c, globalFlags),
		createRecordsCommand(c, globalFlags),
		createChromeCommand(c, globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "glosar",
		Short: "Fill glosa appeals on the provider portal from a lookup table",
		Long: `Glosar walks the guides of an appeal batch open in a Chrome session and
fills the appealed value and justification of each one from a CSV table.

Examples:
  glosar chrome                         # open Chrome with the debug port, log in
  glosar run --lookup glosas.csv        # process the batch on screen
  glosar pause                          # from another terminal
  glosar status`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "settings.json", "path to settings file (json, toml or yaml; optional)")
	return root
}

func createRunCommand(c *command, g *GlobalFlags) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the batch open in the debug browser",
		Long: `Connect to the debug browser, read the batch size and fill every guide
found in the lookup table. Guides missing from the table or failing to
fill pause the run for manual action.

Examples:
  glosar run --lookup glosas.csv
  glosar run --lookup glosas.csv --interactive --lot 4411`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Run(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.LookupPath, "lookup", "", "CSV lookup table (required)")
	cmd.Flags().StringVar(&f.Lot, "lot", "", "lot identifier used in the report file name")
	cmd.Flags().IntVar(&f.Port, "port", 0, "debug port (overrides debug_port)")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "control API address (overrides server.listen)")
	cmd.Flags().BoolVar(&f.Interactive, "interactive", false, "read p/r/s/q commands from stdin")
	cmd.Flags().BoolVar(&f.Launch, "launch", false, "start the debug browser first if its port is closed")
	_ = cmd.MarkFlagRequired("lookup")
	return cmd
}

func createControlCommand(c *command, g *GlobalFlags, action, short string) *cobra.Command {
	f := &ControlFlags{}
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Control(cmd.Context(), action, *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStatusCommand(c *command, g *GlobalFlags) *cobra.Command {
	f := &ControlFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state and counters of the running batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Status(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createRecordsCommand(c *command, g *GlobalFlags) *cobra.Command {
	f := &RecordsFlags{}
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the status records of the running batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Records(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, &f.ControlFlags)
	cmd.Flags().StringVar(&f.Status, "status", "", "only SUCCESS or ERROR records")
	cmd.Flags().IntVar(&f.Since, "since", 0, "only records after this sequence number")
	return cmd
}

func createChromeCommand(c *command, g *GlobalFlags) *cobra.Command {
	f := &ChromeFlags{}
	cmd := &cobra.Command{
		Use:   "chrome",
		Short: "Open Chrome with the remote debugging port for login",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Chrome(cmd.Context(), *f)
		},
	}
	cmd.Flags().IntVar(&f.Port, "port", 0, "debug port (overrides debug_port)")
	cmd.Flags().StringVar(&f.ProfileDir, "profile-dir", "", "Chrome user data dir (overrides profile_dir)")
	cmd.Flags().StringVar(&f.Binary, "binary", "", "Chrome executable (overrides chrome_binary)")
	cmd.Flags().StringVar(&f.StartURL, "url", "", "page to open (overrides portal_url)")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *ControlFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "control API URL (default from server.listen and server.base_path)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}
