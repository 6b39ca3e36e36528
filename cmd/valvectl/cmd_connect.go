package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/l2fabric/valved/pkg/valve"
)

func newConnectCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Cold-start every datapath in a fixture directory",
		Long: `Loads every fixture under --dir and runs datapath_connect on each,
bringing every declared port up. Prints the resulting flow-mod batch per
datapath.

  valvectl connect --dir fixtures/2-switch-stack`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dep, err := loadDeployment(dir)
			if err != nil {
				return err
			}

			now := time.Now()
			out := valve.OFMsgMap{}
			for name, cfg := range dep.configs {
				v, ok := dep.arena.Valve(name)
				if !ok {
					continue
				}
				upPorts := make(map[int]bool, len(cfg.Ports))
				for num := range cfg.Ports {
					upPorts[num] = true
				}
				for dp, msgs := range v.DatapathConnect(now, upPorts) {
					out[dp] = append(out[dp], msgs...)
				}
			}
			printMsgMap(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory of datapath fixture YAML files")
	cmd.MarkFlagRequired("dir")

	return cmd
}
