package metrics

import "strconv"

func portLabel(port int) string { return strconv.Itoa(port) }
func vlanLabel(vid int) string  { return strconv.Itoa(vid) }

func ipVersionLabel(v int) string {
	switch v {
	case 4:
		return "4"
	case 6:
		return "6"
	default:
		return strconv.Itoa(v)
	}
}
