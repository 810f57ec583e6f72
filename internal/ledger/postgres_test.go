package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-ledger/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_GetDeal(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	company := "Nimbus AI"

	mock.ExpectQuery("SELECT id, name, company, created_at FROM deals").
		WithArgs("deal-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "company", "created_at"}).
			AddRow("deal-1", "Project Nimbus", &company, at))

	deal, err := store.GetDeal(context.Background(), "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "Project Nimbus", deal.Name)
	assert.Equal(t, "Nimbus AI", deal.Company)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetDeal_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, company, created_at FROM deals").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "company", "created_at"}))

	_, err := store.GetDeal(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetResolution_Absent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT deal_id, alert_key, alert_type, status, justification").
		WithArgs("deal-1", "abc123").
		WillReturnRows(pgxmock.NewRows([]string{
			"deal_id", "alert_key", "alert_type", "status", "justification",
			"alert_title", "alert_severity", "alert_category", "created_by", "created_at",
		}))

	got, err := store.GetResolution(context.Background(), "deal-1", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteResolution(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM alert_resolutions").
		WithArgs("deal-1", "abc123").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	// Zero rows deleted is still success: unresolve is idempotent.
	err := store.DeleteResolution(context.Background(), "deal-1", "abc123")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyResolution_StaleReview(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pending_reviews").
		WithArgs("review-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := store.ApplyResolution(context.Background(), ResolutionWrite{ReviewID: "review-1"})
	assert.True(t, IsStaleReview(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendEvent(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM fact_events").
		WithArgs("deal-1", "financial.arr", "CREATED").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\)`).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO fact_events").
		WithArgs("ev-1", int64(1), "deal-1", "financial.arr", string(model.CategoryFinancial),
			pgxmock.AnyArg(), "1,200,000", "financial_agent", 85, "CREATED",
			nil, nil, nil, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ev, err := store.AppendEvent(context.Background(), model.FactEvent{
		ID: "ev-1", DealID: "deal-1", FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(1200000),
		DisplayValue: "1,200,000", Source: "financial_agent", SourceConfidence: 85,
		EventType: model.EventCreated, CreatedAt: at,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendEvent_ConcurrentFirstClaim(t *testing.T) {
	store, mock := newMockStore(t)

	// Two first claims for a new (deal, factKey) both see an empty live set;
	// the loser's insert trips the partial unique index and must surface as a
	// stale-review conflict, not a bare store error.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM fact_events").
		WithArgs("deal-1", "financial.arr", "CREATED").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\)`).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(2)))
	mock.ExpectExec("INSERT INTO fact_events").
		WithArgs("ev-3", int64(2), "deal-1", "financial.arr", string(model.CategoryFinancial),
			pgxmock.AnyArg(), "2", "b", 60, "CREATED",
			nil, nil, nil, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_fact_events_live"})
	mock.ExpectRollback()

	_, err := store.AppendEvent(context.Background(), model.FactEvent{
		ID: "ev-3", DealID: "deal-1", FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(2),
		DisplayValue: "2", Source: "b", SourceConfidence: 60,
		EventType: model.EventCreated, CreatedAt: time.Now().UTC(),
	}, "")
	assert.True(t, IsStaleReview(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendEvent_RaceDetected(t *testing.T) {
	store, mock := newMockStore(t)

	// A live event the caller did not name means its read was stale.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM fact_events").
		WithArgs("deal-1", "financial.arr", "CREATED").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("other-event"))
	mock.ExpectRollback()

	_, err := store.AppendEvent(context.Background(), model.FactEvent{
		ID: "ev-2", DealID: "deal-1", FactKey: "financial.arr",
		Category: model.CategoryFinancial, Value: model.NumberValue(1),
		DisplayValue: "1", Source: "a", SourceConfidence: 50,
		EventType: model.EventCreated, CreatedAt: time.Now().UTC(),
	}, "")
	assert.True(t, IsStaleReview(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
