package rpc

import (
	"context"

	"github.com/google/uuid"

	"voice-quiz-control/internal/room"
)

// Loopback performs calls against a local Dispatcher, standing in for the agent's side
// of the transport.
type Loopback struct {
	dispatcher *Dispatcher
	identity   string
}

func NewLoopback(d *Dispatcher, callerIdentity string) *Loopback {
	return &Loopback{dispatcher: d, identity: callerIdentity}
}

func (l *Loopback) PerformRPC(ctx context.Context, method, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return l.dispatcher.Handle(ctx, room.RPCRequest{
		RequestID:      uuid.NewString(),
		CallerIdentity: l.identity,
		Method:         method,
		Payload:        payload,
	}), nil
}
