package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/service/linkedin"
)

type fakeSender struct {
	sendErr map[string]error
	sent    []string
}

func (f *fakeSender) SendConnectionRequest(ctx context.Context, personID, message string) error {
	if err := f.sendErr[personID]; err != nil {
		return err
	}
	f.sent = append(f.sent, personID)
	return nil
}

type fakeNoteGen struct{}

func (fakeNoteGen) GenerateConnectionNote(ctx context.Context, prospect models.Prospect) (string, error) {
	return "Hi " + prospect.Name + ", let's connect.", nil
}

func newNetworkFixture(t *testing.T, prospects []models.Prospect, batchLimit int) (*NetworkWorker, *fakeLedger, *fakeSender) {
	t.Helper()
	ledger := newFakeLedger()
	sender := &fakeSender{sendErr: map[string]error{}}
	cfg := &config.NetworkConfig{Prospects: prospects, BatchLimit: batchLimit}
	w := NewNetworkWorker(cfg, zap.NewNop(), ledger, &fakeLimiter{allowed: true}, fakeNoteGen{}, sender)
	w.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return w, ledger, sender
}

func prospects(names ...string) []models.Prospect {
	out := make([]models.Prospect, len(names))
	for i, name := range names {
		out[i] = models.Prospect{ID: "p-" + name, Name: name, Company: "Acme"}
	}
	return out
}

func TestRunBatchSendsWithinLimit(t *testing.T) {
	w, _, sender := newNetworkFixture(t, prospects("ann", "ben", "cho"), 2)

	outcomes, err := w.RunBatch(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Len(t, sender.sent, 2, "batch limit bounds a single run")
	assert.Len(t, outcomes, 2)
}

func TestRunBatchSkipsContactedProspects(t *testing.T) {
	w, _, sender := newNetworkFixture(t, prospects("ann", "ben"), 0)

	_, err := w.RunBatch(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)

	outcomes, err := w.RunBatch(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, outcomes, "each prospect is contacted at most once")
	assert.Len(t, sender.sent, 2)
}

func TestRunBatchAuthFailureAborts(t *testing.T) {
	w, ledger, sender := newNetworkFixture(t, prospects("ann", "ben"), 0)
	sender.sendErr["p-ann"] = &linkedin.AuthError{Status: 401}

	outcomes, err := w.RunBatch(context.Background(), time.Now())
	require.Error(t, err)

	require.Len(t, outcomes, 1)
	assert.Equal(t, ResultFailed, outcomes[0].Result)
	assert.Equal(t, models.ErrKindAuth, outcomes[0].ErrorKind)
	assert.Empty(t, sender.sent)

	entry := ledger.lastResolved()
	require.NotNil(t, entry)
	assert.Equal(t, models.OutcomeFailed, entry.Outcome)
}
