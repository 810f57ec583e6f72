package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/model"
)

func init() {
	// Replace global logger with a no-op to keep test output clean.
	zap.ReplaceGlobals(zap.NewNop())
}

func TestSQLite_DealLifecycle(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "Project Nimbus", got.Name)
	assert.Equal(t, "Nimbus AI", got.Company)

	_, err = store.GetDeal(ctx, "missing")
	assert.True(t, IsNotFound(err))

	deals, err := store.ListDeals(ctx)
	require.NoError(t, err)
	assert.Len(t, deals, 1)
}

func TestSQLite_AppendAssignsMonotonicSeq(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(1),
		DisplayValue: "1", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, "")
	require.NoError(t, err)

	second, err := store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "team.size",
		Category: model.CategoryTeam, Value: model.NumberValue(2),
		DisplayValue: "2", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, "")
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestSQLite_AppendRejectsStaleSupersede(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(1),
		DisplayValue: "1", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, "")
	require.NoError(t, err)

	// Appending without naming the live event is a stale write.
	_, err = store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(2),
		DisplayValue: "2", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, "")
	assert.True(t, IsStaleReview(err))

	// Naming a dead event is also stale.
	second, err := store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(2),
		DisplayValue: "2", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, first.ID)
	require.NoError(t, err)
	_ = second

	_, err = store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(3),
		DisplayValue: "3", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, first.ID)
	assert.True(t, IsStaleReview(err))
}

func TestSQLite_AppendFlipsSupersededRow(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(1),
		DisplayValue: "1", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, "")
	require.NoError(t, err)

	_, err = store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(2),
		DisplayValue: "2", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, first.ID)
	require.NoError(t, err)

	events, err := store.EventsForFact(ctx, deal.ID, "financial.arr")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventSuperseded, events[0].EventType)
	assert.Equal(t, model.EventCreated, events[1].EventType)
	assert.Equal(t, first.ID, events[1].SupersedesEventID)
}

func TestSQLite_LiveEventUniqueIndex(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(1),
		DisplayValue: "1", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated,
	}, "")
	require.NoError(t, err)

	// The partial unique index rejects a second live CREATED row even when
	// inserted behind the stale check's back.
	_, err = store.db.ExecContext(ctx,
		`INSERT INTO fact_events (id, seq, deal_id, fact_key, category, value, display_value,
			source, source_confidence, event_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'CREATED', ?)`,
		uuid.New().String(), int64(99), deal.ID, "financial.arr", string(model.CategoryFinancial),
		"2", "2", "b", 50, time.Now().UTC(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")

	// Dead rows for the same key are outside the index.
	_, err = store.db.ExecContext(ctx,
		`INSERT INTO fact_events (id, seq, deal_id, fact_key, category, value, display_value,
			source, source_confidence, event_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'DELETED', ?)`,
		uuid.New().String(), int64(100), deal.ID, "financial.arr", string(model.CategoryFinancial),
		"2", "2", "b", 50, time.Now().UTC(),
	)
	require.NoError(t, err)
}

func TestSQLite_EventValueRoundTrip(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()

	value := model.ObjectValue(map[string]any{"arr": float64(1200000), "currency": "USD"})
	_, err := store.AppendEvent(ctx, model.FactEvent{
		ID: uuid.New().String(), DealID: deal.ID, FactKey: "financial.revenue",
		Category: model.CategoryFinancial, Value: value,
		DisplayValue: "ARR 1.2M USD", Source: "financial_agent", SourceConfidence: 80,
		EventType: model.EventCreated,
	}, "")
	require.NoError(t, err)

	events, err := store.EventsForFact(ctx, deal.ID, "financial.revenue")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Value.Equal(value))
}

func TestSQLite_ApplyResolutionConsumesReviewOnce(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()
	review := queueContradiction(t, store, deal.ID)

	w := ResolutionWrite{ReviewID: review.ID}
	require.NoError(t, store.ApplyResolution(ctx, w))

	err := store.ApplyResolution(ctx, w)
	assert.True(t, IsStaleReview(err))
}

func TestSQLite_ResolutionLifecycle(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()
	key := model.AlertKey(model.AlertRedFlag, "financial:arr mismatch")

	// Absent resolution reads as nil without an error.
	got, err := store.GetResolution(ctx, deal.ID, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	created, err := store.UpsertResolution(ctx, model.AlertResolution{
		DealID: deal.ID, AlertKey: key, AlertType: model.AlertRedFlag,
		Status: model.StatusResolved, Justification: "reconciled against bank statements",
		AlertTitle: "ARR mismatch", AlertSeverity: model.SeverityHigh,
		CreatedBy: "analyst-1",
	})
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err = store.GetResolution(ctx, deal.ID, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusResolved, got.Status)

	// Upsert replaces in place.
	_, err = store.UpsertResolution(ctx, model.AlertResolution{
		DealID: deal.ID, AlertKey: key, AlertType: model.AlertRedFlag,
		Status: model.StatusAccepted, Justification: "risk accepted by IC",
	})
	require.NoError(t, err)

	all, err := store.ListResolutions(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.StatusAccepted, all[0].Status)

	// Delete reverts to unresolved; deleting again is a no-op.
	require.NoError(t, store.DeleteResolution(ctx, deal.ID, key))
	got, err = store.GetResolution(ctx, deal.ID, key)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, store.DeleteResolution(ctx, deal.ID, key))
}

func TestSQLite_UpsertResolutionValidation(t *testing.T) {
	store, deal := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertResolution(ctx, model.AlertResolution{
		DealID: deal.ID, AlertKey: "k", Status: model.StatusResolved, Justification: "   ",
	})
	assert.True(t, IsValidation(err), "blank justification rejected")

	_, err = store.UpsertResolution(ctx, model.AlertResolution{
		DealID: deal.ID, Status: model.StatusResolved, Justification: "ok",
	})
	assert.True(t, IsValidation(err), "missing alert key rejected")

	_, err = store.UpsertResolution(ctx, model.AlertResolution{
		DealID: deal.ID, AlertKey: "k", Status: "DISMISSED", Justification: "ok",
	})
	assert.True(t, IsValidation(err), "unknown status rejected")
}
