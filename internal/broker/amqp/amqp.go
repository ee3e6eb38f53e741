// Package amqp implements broker.CommandProducer/ResponseConsumer over a
// plain TCP connection, framed as newline-delimited JSON via
// encoding/json's Encoder/Decoder. No AMQP or Kafka client library exists
// anywhere in the example corpus's dependency set, so rather than fabricate
// one, this adapter speaks the documented wire envelope (spec §6) directly
// over net.Conn — the package name reflects the role this adapter fills in
// SPEC_FULL.md, not a literal AMQP implementation. See DESIGN.md.
package amqp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/MatweyL/Potok/internal/domain"
)

type commandEnvelope struct {
	Type    string         `json:"type"`
	TaskRun domain.Command `json:"task_run"`
}

type responseEnvelope struct {
	CommandResponse domain.CommandResponse `json:"command_response"`
}

// Producer writes commands to conn as newline-delimited JSON. A single
// Producer is safe for concurrent Produce calls.
type Producer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewProducer(conn net.Conn) *Producer {
	return &Producer{enc: json.NewEncoder(conn)}
}

func (p *Producer) Produce(ctx context.Context, routingKey string, cmd domain.Command) error {
	_ = routingKey // carried in the envelope's task_run fields, not a transport header, for this adapter
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(commandEnvelope{Type: "EXECUTE", TaskRun: cmd}); err != nil {
		return fmt.Errorf("amqp: produce: %w", err)
	}
	return nil
}

// Consumer reads newline-delimited JSON responses from conn.
type Consumer struct {
	conn net.Conn
}

func NewConsumer(conn net.Conn) *Consumer {
	return &Consumer{conn: conn}
}

func (c *Consumer) Consume(ctx context.Context) (<-chan domain.CommandResponse, error) {
	out := make(chan domain.CommandResponse)
	dec := json.NewDecoder(bufio.NewReader(c.conn))

	go func() {
		defer close(out)
		for {
			var env responseEnvelope
			if err := dec.Decode(&env); err != nil {
				return
			}
			select {
			case out <- env.CommandResponse:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	return out, nil
}
