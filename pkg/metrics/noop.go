package metrics

// Noop implements Sink with no-ops, for tests that don't care about
// metrics output.
type Noop struct{}

func (Noop) DPStatus(string, bool)                {}
func (Noop) DPConnect(string)                      {}
func (Noop) DPDisconnect(string)                   {}
func (Noop) OFError(string)                        {}
func (Noop) FlowMsgsSent(string, int)              {}
func (Noop) VLANPacketIn(string)                   {}
func (Noop) NonVLANPacketIn(string)                {}
func (Noop) IgnoredPacketIn(string)                {}
func (Noop) PortStatus(string, int, bool)          {}
func (Noop) PortStackState(string, int, int)       {}
func (Noop) PortLACPStatus(string, int, bool)      {}
func (Noop) PortLearnBans(string, int)             {}
func (Noop) VLANHostsLearned(string, int, int)     {}
func (Noop) VLANLearnBans(string, int)             {}
func (Noop) VLANNeighbors(string, int, int, int)   {}
func (Noop) PortVLANHostsLearned(string, int, int, int) {}
func (Noop) LearnedMACs(string, int, int, bool)    {}
func (Noop) ConfigReload(string, bool)             {}
func (Noop) StackProbesReceived(string, int)       {}
func (Noop) StackCablingErrors(string, int)        {}
func (Noop) ConfigTableNames(string, []string)     {}
func (Noop) DPDescStats(string)                    {}
