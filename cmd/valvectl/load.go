package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l2fabric/valved/pkg/fabric"
	"github.com/l2fabric/valved/pkg/metrics"
	"github.com/l2fabric/valved/pkg/notify"
	"github.com/l2fabric/valved/pkg/valve"
	"github.com/l2fabric/valved/pkg/valve/valvetest"
)

// deployment is the fixture-driven fabric a valvectl invocation drives: the
// coordinating arena plus each datapath's built config, kept around so
// "reload" has something to diff against.
type deployment struct {
	arena   *fabric.Arena
	configs map[string]*valve.DPConfig
}

// loadDeployment reads every *.yaml fixture under dir, one file per
// datapath, wires the declared stack links into a shared topology, and
// constructs a Valve per datapath registered into one Arena.
func loadDeployment(dir string) (*deployment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading fixture dir %s: %w", dir, err)
	}

	var fixtures []*valvetest.Fixture
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		f, err := valvetest.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", e.Name(), err)
		}
		fixtures = append(fixtures, f)
	}
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture YAML files found under %s", dir)
	}

	arena := fabric.NewArena(stackRoot(fixtures), true)

	configs := make(map[string]*valve.DPConfig, len(fixtures))
	for _, f := range fixtures {
		cfg, err := f.Build()
		if err != nil {
			return nil, fmt.Errorf("building %s: %w", f.Name, err)
		}
		configs[f.Name] = cfg
	}

	// Wire the stack graph before constructing any manager, so
	// ShortestPathFunc resolves correctly for the first DatapathConnect.
	for _, cfg := range configs {
		for _, p := range cfg.Ports {
			if p.Stack != nil {
				arena.Topology().AddLink(cfg.Name, p.Number, p.Stack.DPName, p.Stack.Port)
			}
		}
	}

	reg := prometheus.NewRegistry()
	sink := metrics.NewProm(reg)

	for _, f := range fixtures {
		cfg := configs[f.Name]
		priorities := valve.DefaultPriorities()
		shortestPath := func(dpName string) (int, bool) {
			return arena.Topology().ShortestPathPort(dpName)
		}

		var flood valve.FloodManager
		if f.Stack != nil {
			flood = valve.NewStackedFloodManager(cfg.Name, priorities, valve.NoReflection, arena.Topology().IsRoot(cfg.Name), shortestPath)
		} else {
			flood = valve.NewStandaloneFloodManager(cfg.Name, priorities, cfg.UseGroupTables)
		}
		acls := valve.NewACLManager(cfg.Name, priorities, nil, shortestPath)

		arena.Register(valve.NewValve(cfg, flood, acls, sink, notify.Noop{}))
	}

	return &deployment{arena: arena, configs: configs}, nil
}

// stackRoot picks the fixture with the lowest stack priority as the arena
// root, falling back to the first fixture for an unstacked deployment.
func stackRoot(fixtures []*valvetest.Fixture) string {
	root := fixtures[0].Name
	haveStack := false
	bestPriority := 0
	for _, f := range fixtures {
		if f.Stack == nil {
			continue
		}
		if !haveStack || f.Stack.Priority < bestPriority {
			root, bestPriority, haveStack = f.Name, f.Stack.Priority, true
		}
	}
	return root
}
