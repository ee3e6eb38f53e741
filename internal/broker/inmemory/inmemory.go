// Package inmemory implements a broker.CommandProducer/ResponseConsumer
// pair over a single in-process channel pair — used by tests and the
// `-inmemory` reference mode of cmd/potok-scheduler, where there is no
// real worker fleet to round-trip through.
package inmemory

import (
	"context"

	"github.com/MatweyL/Potok/internal/domain"
)

// CommandEnvelope pairs a produced command with its routing key, the shape
// a test worker reads off Broker.Commands().
type CommandEnvelope struct {
	RoutingKey string
	Command    domain.Command
}

// Broker is both ends of the command/response loop: Produce pushes a
// command onto the commands channel, and a caller (typically a test
// harness standing in for a worker) reads it and pushes a response onto
// Responses for Consume to surface.
type Broker struct {
	commands  chan CommandEnvelope
	responses chan domain.CommandResponse
}

func New(buffer int) *Broker {
	return &Broker{
		commands:  make(chan CommandEnvelope, buffer),
		responses: make(chan domain.CommandResponse, buffer),
	}
}

func (b *Broker) Produce(ctx context.Context, routingKey string, cmd domain.Command) error {
	select {
	case b.commands <- CommandEnvelope{RoutingKey: routingKey, Command: cmd}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) Consume(ctx context.Context) (<-chan domain.CommandResponse, error) {
	out := make(chan domain.CommandResponse)
	go func() {
		defer close(out)
		for {
			select {
			case r, ok := <-b.responses:
				if !ok {
					return
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Commands exposes the produced-command stream for a test worker to drain.
func (b *Broker) Commands() <-chan CommandEnvelope { return b.commands }

// Respond lets a test worker push a CommandResponse back for the consumer
// side to pick up.
func (b *Broker) Respond(ctx context.Context, resp domain.CommandResponse) error {
	select {
	case b.responses <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
