package ofp

import "sort"

// Reorder re-sorts msgs into a deterministic sequence:
// table-features first (cold start only), deletes before adds within a
// table, and a Barrier inserted between dependency boundaries when
// traits.UseBarriers is set. coldStart indicates whether this batch
// represents a full cold-start sequence (affects TableFeatures placement
// and group table flush ordering).
func Reorder(msgs []Message, traits Traits, coldStart bool) []Message {
	if len(msgs) == 0 {
		return msgs
	}

	var features []Message
	var groupFlush []Message
	var deletes []Message
	var adds []Message
	var rest []Message

	for _, m := range msgs {
		switch v := m.(type) {
		case TableFeatures:
			features = append(features, v)
		case GroupMod:
			if coldStart && traits.DeleteAllGroupsOnColdStart && v.Command == GroupDeleteCmd {
				groupFlush = append(groupFlush, v)
				continue
			}
			if v.Command == GroupDeleteCmd {
				deletes = append(deletes, v)
			} else {
				adds = append(adds, v)
			}
		case FlowMod:
			if v.Command == FlowDelete || v.Command == FlowDeleteStrict {
				deletes = append(deletes, v)
			} else {
				adds = append(adds, v)
			}
		case MeterMod:
			if v.Command == MeterDeleteCmd {
				deletes = append(deletes, v)
			} else {
				adds = append(adds, v)
			}
		default:
			rest = append(rest, m)
		}
	}

	// Stable sort deletes/adds by table name so output is deterministic
	// across runs with identical input sets.
	sortByTable(deletes)
	sortByTable(adds)

	out := make([]Message, 0, len(msgs)+2)
	if coldStart {
		out = append(out, features...)
		out = append(out, groupFlush...)
	} else {
		out = append(out, features...)
	}
	out = append(out, deletes...)
	if traits.UseBarriers && len(deletes) > 0 && len(adds) > 0 {
		out = append(out, Barrier{})
	}
	out = append(out, adds...)
	out = append(out, rest...)
	return out
}

func tableOf(m Message) TableID {
	switch v := m.(type) {
	case FlowMod:
		return v.Table
	default:
		return ""
	}
}

func sortByTable(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return tableOf(msgs[i]) < tableOf(msgs[j])
	})
}
