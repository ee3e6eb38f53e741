// Package broker defines the outbound command / inbound response boundary
// (spec §6) that the dispatcher and response ingestor talk to. Two
// concrete adapters live in the inmemory and amqp subpackages;
// cmd/potok-scheduler picks one by flag (-inmemory for the in-process
// adapter, otherwise -broker-addr for the amqp one).
package broker

import (
	"context"

	"github.com/MatweyL/Potok/internal/domain"
)

// CommandProducer emits one EXECUTE command per dispatched run. The
// dispatcher passes the run's task ID as routingKey; tasks and runs carry
// no group name, so commands are not routed per group.
type CommandProducer interface {
	Produce(ctx context.Context, routingKey string, cmd domain.Command) error
}

// ResponseConsumer streams worker responses as they arrive. The returned
// channel is closed when the consumer shuts down or ctx is cancelled.
type ResponseConsumer interface {
	Consume(ctx context.Context) (<-chan domain.CommandResponse, error)
}
