package dispatch

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/batch"
	"github.com/MatweyL/Potok/internal/broker/inmemory"
	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/logging"
	"github.com/MatweyL/Potok/internal/store/memstore"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Output: io.Discard})
}

// fixedBatch is a batch.Provider stub that always returns the same run IDs.
type fixedBatch struct{ ids []string }

func (f fixedBatch) NextBatch(ctx context.Context) ([]string, error) { return f.ids, nil }

type erroringBatch struct{ err error }

func (e erroringBatch) NextBatch(ctx context.Context) ([]string, error) { return nil, e.err }

func newDispatcher(t *testing.T, provider batch.Provider, st *memstore.Store, producer Producer) *Dispatcher {
	t.Helper()
	d := New(provider, st.Runs(), st.Payloads(), producer, Config{Workers: 2, RatePerSecond: 1000, Burst: 10}, testLogger())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDispatcher_TransitionsToQueuedAfterSuccessfulProduce(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, st.Runs().Create(ctx, domain.TaskRun{ID: "r1", TaskID: "t1"}, domain.TaskRunStatusLogEntry{
		TaskRunID: "r1", Status: domain.RunWaiting, CreatedAt: now,
	}))

	broker := inmemory.New(4)
	d := newDispatcher(t, fixedBatch{ids: []string{"r1"}}, st, broker)

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := st.Runs().CurrentStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunQueued, status)

	select {
	case env := <-broker.Commands():
		assert.Equal(t, "t1", env.RoutingKey)
		assert.Equal(t, "r1", env.Command.TaskRunID)
		assert.Equal(t, domain.CommandExecute, env.Command.Type)
	default:
		t.Fatal("expected a command to have been produced")
	}
}

func TestDispatcher_EmptyBatchIsNoop(t *testing.T) {
	st := memstore.New()
	broker := inmemory.New(4)
	d := newDispatcher(t, fixedBatch{}, st, broker)

	n, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_BatchProviderErrorPropagates(t *testing.T) {
	st := memstore.New()
	broker := inmemory.New(4)
	boom := errors.New("boom")
	d := newDispatcher(t, erroringBatch{err: boom}, st, broker)

	_, err := d.Tick(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestDispatcher_ResolvesPayloadWhenPresent(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Now()

	payload, err := st.Payloads().Upsert(ctx, domain.Payload{Checksum: "csum-1", Data: map[string]interface{}{"k": "v"}})
	require.NoError(t, err)

	require.NoError(t, st.Runs().Create(ctx, domain.TaskRun{ID: "r1", TaskID: "t1", PayloadID: payload.Checksum}, domain.TaskRunStatusLogEntry{
		TaskRunID: "r1", Status: domain.RunWaiting, CreatedAt: now,
	}))

	broker := inmemory.New(4)
	d := newDispatcher(t, fixedBatch{ids: []string{"r1"}}, st, broker)

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	env := <-broker.Commands()
	assert.Equal(t, payload.Checksum, env.Command.Payload.Checksum)
}

func TestDispatcher_UnknownRunFailsThatRunOnly(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, st.Runs().Create(ctx, domain.TaskRun{ID: "r1", TaskID: "t1"}, domain.TaskRunStatusLogEntry{
		TaskRunID: "r1", Status: domain.RunWaiting, CreatedAt: now,
	}))

	broker := inmemory.New(4)
	d := newDispatcher(t, fixedBatch{ids: []string{"r1", "ghost"}}, st, broker)

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the unresolvable run is skipped, the real one still dispatches")
}
