package main

import (
	"fmt"
	"sort"

	"github.com/l2fabric/valved/internal/ofpctl/cliutil"
	"github.com/l2fabric/valved/pkg/valve"
)

// printMsgMap prints the batched per-datapath output an Arena/Valve
// operation returns, grouped and sorted by datapath name for deterministic
// output across runs.
func printMsgMap(out valve.OFMsgMap) {
	if len(out) == 0 {
		fmt.Println(cliutil.Dim("(no flow changes)"))
		return
	}
	names := make([]string, 0, len(out))
	for dp := range out {
		names = append(names, dp)
	}
	sort.Strings(names)

	for _, dp := range names {
		msgs := out[dp]
		fmt.Printf("%s: %d message(s)\n", cliutil.Green(dp), len(msgs))
		for i, m := range msgs {
			fmt.Printf("  [%d] %T %+v\n", i, m, m)
		}
	}
}
