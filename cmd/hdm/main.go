package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/hdm/pkg/connector/registry"
	"github.com/ajitpratap0/hdm/pkg/dao"
	"github.com/ajitpratap0/hdm/pkg/logger"

	// Register every adapter
	_ "github.com/ajitpratap0/hdm/pkg/connector/sinks/fs"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sinks/gcs"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sinks/mysql"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sinks/postgresql"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sinks/s3"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sinks/snowflake"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sources/dummy"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sources/fs"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sources/fschunk"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sources/mysql"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sources/postgresql"
	_ "github.com/ajitpratap0/hdm/pkg/connector/sources/s3"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hdm",
		Short: "hdm - data migrator with a persistent state ledger",
		Long: `hdm moves tabular data from sources to sinks as described by a manifest.
Every pull and push is recorded in a state ledger, so reruns skip processed
files and database sources resume from their last watermark.`,
		SilenceUsage: true,
	}

	root.AddCommand(newVersionCmd(), newListCmd(), newRunCmd(), newLedgerCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hdm v%s\n", version)
			if info, ok := debug.ReadBuildInfo(); ok {
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" {
						fmt.Fprintf(out, "Revision: %s\n", s.Value)
					}
				}
			}
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered source, sink and ledger types",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			section := func(title string, names []string) {
				fmt.Fprintln(out, title)
				for _, n := range names {
					fmt.Fprintf(out, "  - %s\n", n)
				}
			}
			section("Sources:", registry.ListSources())
			section("\nSinks:", registry.ListSinks())
			section("\nLedger backends:", dao.List())
		},
	}
}
