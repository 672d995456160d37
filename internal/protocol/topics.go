package protocol

// Topics names the three logical channels of one room. Only the host topic is
// retained; chat is loss-tolerant and never feeds state.
type Topics struct {
	Host   string // host -> all snapshots, retained
	Client string // guest -> host commands
	Chat   string // free-for-all, out of the state path
}

func TopicsFor(prefix, code string) Topics {
	base := prefix + "/" + code
	return Topics{
		Host:   base + "/host",
		Client: base + "/client",
		Chat:   base + "/chat",
	}
}
