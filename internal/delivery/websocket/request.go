package websocket

import "encoding/json"

// Frame is an inbound push frame: a command name and its arguments.
type Frame struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args"`
}

type MessageArgs struct {
	Message string `json:"message"`
}
