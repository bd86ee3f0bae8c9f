package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ccfolio/infrastructure/ws"

	"go.uber.org/zap"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownCommand = errors.New("unknown command")
)

// CommandFunc executes one command on behalf of sender.
type CommandFunc func(ctx context.Context, sender ws.Peer, args json.RawMessage) error

// CommandProcessor decodes push frames and dispatches them by command name.
// A failing command answers the sender with an error reply; the session stays
// open.
type CommandProcessor struct {
	commands map[string]CommandFunc
	hub      ws.Hub
	log      *zap.Logger
}

func NewCommandProcessor(hub ws.Hub, log *zap.Logger) *CommandProcessor {
	p := &CommandProcessor{
		commands: make(map[string]CommandFunc),
		hub:      hub,
		log:      log,
	}
	p.Register("echo", p.echo)
	p.Register("broadcast", p.broadcast)
	p.Register("count", p.count)
	return p
}

// Register adds or replaces a command. Call before sessions are served.
func (p *CommandProcessor) Register(name string, fn CommandFunc) {
	if _, exists := p.commands[name]; exists {
		p.log.Warn("command registered twice", zap.String("command", name))
	}
	p.commands[name] = fn
}

func (p *CommandProcessor) HandleFrame(ctx context.Context, sender ws.Peer, frame []byte) {
	var f Frame
	if err := json.Unmarshal(frame, &f); err != nil || f.Command == "" {
		p.replyError(sender, "", ErrMalformedFrame)
		return
	}

	fn, ok := p.commands[f.Command]
	if !ok {
		p.replyError(sender, f.Command, fmt.Errorf("%w: %s", ErrUnknownCommand, f.Command))
		return
	}

	if err := fn(ctx, sender, f.Args); err != nil {
		p.log.Debug("command failed",
			zap.String("peer", sender.ID()),
			zap.String("command", f.Command),
			zap.Error(err))
		p.replyError(sender, f.Command, err)
	}
}

func (p *CommandProcessor) echo(_ context.Context, sender ws.Peer, args json.RawMessage) error {
	var a MessageArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	return p.reply(sender, Reply{Type: "echo", Data: a})
}

func (p *CommandProcessor) broadcast(_ context.Context, sender ws.Peer, args json.RawMessage) error {
	var a MessageArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if a.Message == "" {
		return errors.New("message is required")
	}

	payload, err := json.Marshal(BroadcastMessage{From: sender.ID(), Message: a.Message})
	if err != nil {
		return err
	}
	delivered := p.hub.Broadcast(payload)
	p.log.Debug("broadcast", zap.String("peer", sender.ID()), zap.Int("delivered", delivered))
	return nil
}

func (p *CommandProcessor) count(_ context.Context, sender ws.Peer, _ json.RawMessage) error {
	return p.reply(sender, Reply{Type: "count", Data: CountData{Peers: p.hub.Count()}})
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func (p *CommandProcessor) reply(sender ws.Peer, r Reply) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	// a false Send means the peer is gone or was dropped as a slow consumer
	sender.Send(data)
	return nil
}

func (p *CommandProcessor) replyError(sender ws.Peer, command string, err error) {
	_ = p.reply(sender, Reply{Type: "error", Data: command, Error: err.Error()})
}
