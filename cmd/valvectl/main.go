package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l2fabric/valved/pkg/version"
)

var verboseFlag bool

// Sentinel errors for exit code mapping. RunE handlers return these instead
// of calling os.Exit directly, so deferred cleanup runs.
var (
	errNotFound   = errors.New("datapath not found")
	errInfraError = errors.New("fixture load error")
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "valvectl",
		Short: "Drive an in-memory valve fabric against YAML fixtures",
		Long: `valvectl loads datapath fixtures (one YAML file per datapath) from a
directory, builds an in-memory fabric of Valves wired into a shared stack
topology, and drives it through the Valve Core's externally-triggered
operations for manual exploration and smoke-checks.

  valvectl connect --dir fixtures/        # cold-start every datapath
  valvectl packet-in --dir fixtures/ ...  # feed one packet-in
  valvectl reload --dir fixtures/ <dp>    # re-parse and reconcile one dp
  valvectl show --dir fixtures/           # print the built topology`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	}

	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newConnectCmd(),
		newReloadCmd(),
		newPacketInCmd(),
		newShowCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version.Info())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInfraError) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
