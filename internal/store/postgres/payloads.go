package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/resilience"
)

type payloadStore struct{ q querier }

func (s *payloadStore) Upsert(ctx context.Context, p domain.Payload) (domain.Payload, error) {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return domain.Payload{}, resilience.New(resilience.ProgrammerError, "store.payloads", err)
	}

	var existing []byte
	err = s.q.QueryRow(ctx, `
		INSERT INTO payloads (checksum, data) VALUES ($1, $2)
		ON CONFLICT (checksum) DO UPDATE SET checksum = payloads.checksum
		RETURNING data`, p.Checksum, data).Scan(&existing)
	if err != nil {
		return domain.Payload{}, resilience.Classify(err, "store.payloads")
	}

	var out map[string]interface{}
	if err := json.Unmarshal(existing, &out); err != nil {
		return domain.Payload{}, resilience.New(resilience.ResponseMalformed, "store.payloads", err)
	}
	return domain.Payload{Checksum: p.Checksum, Data: out}, nil
}

func (s *payloadStore) Get(ctx context.Context, checksum string) (domain.Payload, error) {
	var data []byte
	err := s.q.QueryRow(ctx, `SELECT data FROM payloads WHERE checksum = $1`, checksum).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payload{}, resilience.New(resilience.UnknownReference, "store.payloads", fmt.Errorf("payload %s not found", checksum))
	}
	if err != nil {
		return domain.Payload{}, resilience.Classify(err, "store.payloads")
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.Payload{}, resilience.New(resilience.ResponseMalformed, "store.payloads", err)
	}
	return domain.Payload{Checksum: checksum, Data: out}, nil
}
