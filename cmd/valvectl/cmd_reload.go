package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/l2fabric/valved/internal/ofpctl/cliutil"
	"github.com/l2fabric/valved/pkg/valve/valvetest"
)

func newReloadCmd() *cobra.Command {
	var dir, file string

	cmd := &cobra.Command{
		Use:   "reload <dp>",
		Short: "Reconcile one datapath's config against an edited fixture",
		Long: `Builds the fabric from --dir, then reloads the named datapath against
a second fixture (--file, defaulting to <dir>/<dp>.yaml re-read from disk)
and prints whether the reconciliation was warm or cold along with the
resulting flow-mod batch.

  valvectl reload --dir fixtures/2-switch-stack --file dp1-edited.yaml dp1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dpName := args[0]

			dep, err := loadDeployment(dir)
			if err != nil {
				return err
			}
			v, ok := dep.arena.Valve(dpName)
			if !ok {
				return fmt.Errorf("%w: %s", errNotFound, dpName)
			}

			path := file
			if path == "" {
				path = filepath.Join(dir, dpName+".yaml")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fixture, err := valvetest.Parse(data)
			if err != nil {
				return err
			}
			newCfg, err := fixture.Build()
			if err != nil {
				return err
			}

			out, restart := v.ReloadConfig(time.Now(), newCfg)
			fmt.Printf("%s: %s restart\n", cliutil.Green(dpName), restartName(restart))
			printMsgMap(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory of datapath fixture YAML files")
	cmd.Flags().StringVar(&file, "file", "", "path to the edited fixture (defaults to <dir>/<dp>.yaml)")
	cmd.MarkFlagRequired("dir")

	return cmd
}
