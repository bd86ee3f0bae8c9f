package websocket

// Reply is what a command sends back to the peer that issued it.
type Reply struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// BroadcastMessage is fanned out to every connected peer.
type BroadcastMessage struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type CountData struct {
	Peers int `json:"peers"`
}
