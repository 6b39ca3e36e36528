package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/l2fabric/valved/internal/ofpctl/cliutil"
)

func newShowCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the datapath and stack topology built from a fixture directory",
		Long: `Loads every fixture under --dir without connecting anything, then prints
one row per datapath (name, port count, VLAN count, stack role) and the
stack link adjacency discovered from each port's declared peer.

  valvectl show --dir fixtures/2-switch-stack`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dep, err := loadDeployment(dir)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(dep.configs))
			for name := range dep.configs {
				names = append(names, name)
			}
			sort.Strings(names)

			topo := dep.arena.Topology()

			t := cliutil.NewTable("DATAPATH", "PORTS", "VLANS", "ROLE")
			for _, name := range names {
				cfg := dep.configs[name]
				role := "member"
				if topo.IsRoot(name) {
					role = "root"
				}
				t.Row(name, fmt.Sprint(len(cfg.Ports)), fmt.Sprint(len(cfg.VLANs)), role)
			}
			t.Flush()

			fmt.Println()
			links := cliutil.NewTable("DATAPATH", "PORT", "PEER DP", "PEER PORT")
			for _, name := range names {
				cfg := dep.configs[name]
				portNums := make([]int, 0, len(cfg.Ports))
				for num := range cfg.Ports {
					portNums = append(portNums, num)
				}
				sort.Ints(portNums)
				for _, num := range portNums {
					p := cfg.Ports[num]
					if p.Stack == nil {
						continue
					}
					links.Row(name, fmt.Sprint(num), p.Stack.DPName, fmt.Sprint(p.Stack.Port))
				}
			}
			links.Flush()

			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory of datapath fixture YAML files")
	cmd.MarkFlagRequired("dir")

	return cmd
}
