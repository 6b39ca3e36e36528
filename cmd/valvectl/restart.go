package main

import "github.com/l2fabric/valved/pkg/valve"

func restartName(r valve.RestartType) string {
	switch r {
	case valve.RestartWarm:
		return "warm"
	case valve.RestartCold:
		return "cold"
	default:
		return "none"
	}
}
