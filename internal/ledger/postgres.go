package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// for unit tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_deal":          `SELECT id, name, company, created_at FROM deals WHERE id = $1`,
	"events_for_fact":   `SELECT ` + pgEventColumns + ` FROM fact_events WHERE deal_id = $1 AND fact_key = $2 ORDER BY created_at, seq`,
	"events_for_deal":   `SELECT ` + pgEventColumns + ` FROM fact_events WHERE deal_id = $1 ORDER BY created_at, seq`,
	"open_reviews":      `SELECT ` + pgReviewColumns + ` FROM pending_reviews WHERE deal_id = $1 ORDER BY created_at`,
	"get_resolution":    `SELECT ` + pgResolutionColumns + ` FROM alert_resolutions WHERE deal_id = $1 AND alert_key = $2`,
	"list_resolutions":  `SELECT ` + pgResolutionColumns + ` FROM alert_resolutions WHERE deal_id = $1 ORDER BY created_at`,
	"delete_resolution": `DELETE FROM alert_resolutions WHERE deal_id = $1 AND alert_key = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS deals (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	company    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fact_events (
	id                  TEXT PRIMARY KEY,
	seq                 BIGINT NOT NULL,
	deal_id             TEXT NOT NULL REFERENCES deals(id),
	fact_key            TEXT NOT NULL,
	category            TEXT NOT NULL,
	value               JSONB NOT NULL,
	display_value       TEXT NOT NULL,
	source              TEXT NOT NULL,
	source_confidence   INT NOT NULL,
	event_type          TEXT NOT NULL,
	supersedes_event_id TEXT REFERENCES fact_events(id),
	created_by          TEXT,
	reason              TEXT,
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_reviews (
	id                     TEXT PRIMARY KEY,
	deal_id                TEXT NOT NULL REFERENCES deals(id),
	fact_key               TEXT NOT NULL,
	category               TEXT NOT NULL,
	new_value              JSONB NOT NULL,
	new_display_value      TEXT NOT NULL,
	new_source             TEXT NOT NULL,
	new_confidence         INT NOT NULL,
	existing_event_id      TEXT NOT NULL,
	existing_value         JSONB NOT NULL,
	existing_display_value TEXT NOT NULL,
	existing_source        TEXT NOT NULL,
	existing_confidence    INT NOT NULL,
	contradiction_reason   TEXT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_resolutions (
	deal_id        TEXT NOT NULL REFERENCES deals(id),
	alert_key      TEXT NOT NULL,
	alert_type     TEXT NOT NULL,
	status         TEXT NOT NULL,
	justification  TEXT NOT NULL,
	alert_title    TEXT,
	alert_severity TEXT,
	alert_category TEXT,
	created_by     TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (deal_id, alert_key)
);

CREATE INDEX IF NOT EXISTS idx_fact_events_deal_key ON fact_events(deal_id, fact_key);
CREATE INDEX IF NOT EXISTS idx_fact_events_type ON fact_events(deal_id, fact_key, event_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fact_events_live ON fact_events(deal_id, fact_key) WHERE event_type = 'CREATED';
CREATE INDEX IF NOT EXISTS idx_pending_reviews_deal ON pending_reviews(deal_id);
`

const pgEventColumns = `id, seq, deal_id, fact_key, category, value, display_value,
	source, source_confidence, event_type, supersedes_event_id, created_by, reason, created_at`

const pgReviewColumns = `id, deal_id, fact_key, category,
	new_value, new_display_value, new_source, new_confidence,
	existing_event_id, existing_value, existing_display_value, existing_source, existing_confidence,
	contradiction_reason, created_at`

const pgResolutionColumns = `deal_id, alert_key, alert_type, status, justification,
	alert_title, alert_severity, alert_category, created_by, created_at`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateDeal(ctx context.Context, deal model.Deal) (*model.Deal, error) {
	if deal.ID == "" {
		deal.ID = uuid.New().String()
	}
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deals (id, name, company, created_at) VALUES ($1, $2, $3, $4)`,
		deal.ID, deal.Name, nullString(deal.Company), deal.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert deal")
	}
	return &deal, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, company, created_at FROM deals WHERE id = $1`, dealID,
	)
	var d model.Deal
	var company *string
	err := row.Scan(&d.ID, &d.Name, &company, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "deal", ID: dealID}
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get deal")
	}
	if company != nil {
		d.Company = *company
	}
	return &d, nil
}

func (s *PostgresStore) ListDeals(ctx context.Context) ([]model.Deal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, company, created_at FROM deals ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		var company *string
		if err := rows.Scan(&d.ID, &d.Name, &company, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		if company != nil {
			d.Company = *company
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "postgres: list deals iterate")
}

func (s *PostgresStore) EventsForFact(ctx context.Context, dealID, factKey string) ([]model.FactEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgEventColumns+` FROM fact_events
		 WHERE deal_id = $1 AND fact_key = $2 ORDER BY created_at, seq`,
		dealID, factKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: events for fact")
	}
	defer rows.Close()
	return collectPgEvents(rows)
}

func (s *PostgresStore) EventsForDeal(ctx context.Context, dealID string) ([]model.FactEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgEventColumns+` FROM fact_events
		 WHERE deal_id = $1 ORDER BY created_at, seq`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: events for deal")
	}
	defer rows.Close()
	return collectPgEvents(rows)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev model.FactEvent, supersedesID string) (*model.FactEvent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx)

	if err := appendEventTx(ctx, pgExecutor{tx}, &ev, supersedesID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit append")
	}
	return &ev, nil
}

func (s *PostgresStore) CreateReview(ctx context.Context, review model.PendingReview) (*model.PendingReview, error) {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	newJSON, err := json.Marshal(review.NewValue)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal new value")
	}
	existingJSON, err := json.Marshal(review.ExistingValue)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal existing value")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_reviews (id, deal_id, fact_key, category,
			new_value, new_display_value, new_source, new_confidence,
			existing_event_id, existing_value, existing_display_value, existing_source, existing_confidence,
			contradiction_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		review.ID, review.DealID, review.FactKey, string(review.Category),
		string(newJSON), review.NewDisplayValue, review.NewSource, review.NewConfidence,
		review.ExistingEventID, string(existingJSON), review.ExistingDisplayValue,
		review.ExistingSource, review.ExistingConfidence,
		review.ContradictionReason, review.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert review")
	}
	return &review, nil
}

func (s *PostgresStore) OpenReviews(ctx context.Context, dealID string) ([]model.PendingReview, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgReviewColumns+` FROM pending_reviews WHERE deal_id = $1 ORDER BY created_at`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open reviews")
	}
	defer rows.Close()

	var reviews []model.PendingReview
	for rows.Next() {
		r, err := scanPgReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, eris.Wrap(rows.Err(), "postgres: open reviews iterate")
}

func (s *PostgresStore) GetReview(ctx context.Context, dealID, reviewID string) (*model.PendingReview, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgReviewColumns+` FROM pending_reviews WHERE deal_id = $1 AND id = $2`,
		dealID, reviewID,
	)
	r, err := scanPgReview(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "review", ID: reviewID}
	}
	return r, err
}

func (s *PostgresStore) ApplyResolution(ctx context.Context, w ResolutionWrite) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin resolution")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM pending_reviews WHERE id = $1`, w.ReviewID)
	if err != nil {
		return eris.Wrap(err, "postgres: consume review")
	}
	if tag.RowsAffected() == 0 {
		return &StaleReviewError{ReviewID: w.ReviewID}
	}

	if w.NewEvent != nil {
		if err := appendEventTx(ctx, pgExecutor{tx}, w.NewEvent, w.SupersedeID); err != nil {
			return err
		}
	}
	if w.AuditEvent != nil {
		if err := insertEventTx(ctx, pgExecutor{tx}, w.AuditEvent); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit resolution")
}

func (s *PostgresStore) UpsertResolution(ctx context.Context, res model.AlertResolution) (*model.AlertResolution, error) {
	if err := validateResolution(&res); err != nil {
		return nil, err
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_resolutions (deal_id, alert_key, alert_type, status, justification,
			alert_title, alert_severity, alert_category, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (deal_id, alert_key) DO UPDATE SET
			status = EXCLUDED.status,
			justification = EXCLUDED.justification,
			alert_title = EXCLUDED.alert_title,
			alert_severity = EXCLUDED.alert_severity,
			alert_category = EXCLUDED.alert_category,
			created_by = EXCLUDED.created_by,
			created_at = EXCLUDED.created_at`,
		res.DealID, res.AlertKey, string(res.AlertType), string(res.Status), res.Justification,
		nullString(res.AlertTitle), nullString(string(res.AlertSeverity)),
		nullString(res.AlertCategory), nullString(res.CreatedBy), res.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert resolution")
	}
	return &res, nil
}

func (s *PostgresStore) GetResolution(ctx context.Context, dealID, alertKey string) (*model.AlertResolution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgResolutionColumns+` FROM alert_resolutions WHERE deal_id = $1 AND alert_key = $2`,
		dealID, alertKey,
	)
	r, err := scanPgResolution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) ListResolutions(ctx context.Context, dealID string) ([]model.AlertResolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgResolutionColumns+` FROM alert_resolutions WHERE deal_id = $1 ORDER BY created_at`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list resolutions")
	}
	defer rows.Close()

	var out []model.AlertResolution
	for rows.Next() {
		r, err := scanPgResolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list resolutions iterate")
}

func (s *PostgresStore) DeleteResolution(ctx context.Context, dealID, alertKey string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM alert_resolutions WHERE deal_id = $1 AND alert_key = $2`,
		dealID, alertKey,
	)
	return eris.Wrap(err, "postgres: delete resolution")
}

// pgExecutor adapts a pgx transaction to the shared append helpers. The live
// row query takes FOR UPDATE so concurrent evaluations of one (deal, factKey)
// serialize on the store.
type pgExecutor struct {
	tx pgx.Tx
}

func (e pgExecutor) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: exec")
	}
	return tag.RowsAffected(), nil
}

func (e pgExecutor) queryLive(ctx context.Context, dealID, factKey string) ([]string, error) {
	rows, err := e.tx.Query(ctx,
		`SELECT id FROM fact_events WHERE deal_id = $1 AND fact_key = $2 AND event_type = $3 FOR UPDATE`,
		dealID, factKey, string(model.EventCreated),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query live events")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan live id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: live events iterate")
}

func (e pgExecutor) nextSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := e.tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM fact_events`,
	).Scan(&seq)
	return seq, eris.Wrap(err, "postgres: next seq")
}

func (e pgExecutor) insertEvent(ctx context.Context, ev *model.FactEvent) error {
	valueJSON, err := json.Marshal(ev.Value)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal value")
	}
	_, err = e.tx.Exec(ctx,
		`INSERT INTO fact_events (id, seq, deal_id, fact_key, category, value, display_value,
			source, source_confidence, event_type, supersedes_event_id, created_by, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		ev.ID, ev.Seq, ev.DealID, ev.FactKey, string(ev.Category), string(valueJSON), ev.DisplayValue,
		ev.Source, ev.SourceConfidence, string(ev.EventType),
		nullString(ev.SupersedesEventID), nullString(ev.CreatedBy), nullString(ev.Reason), ev.CreatedAt,
	)
	// FOR UPDATE locks nothing when the live set is empty, so two first claims
	// for a new (deal, factKey) can both pass the stale check. The partial
	// unique index on live CREATED rows catches the loser here.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &StaleReviewError{}
	}
	return eris.Wrap(err, "postgres: insert event")
}

// pg scan helpers

func collectPgEvents(rows pgx.Rows) ([]model.FactEvent, error) {
	var events []model.FactEvent
	for rows.Next() {
		ev, err := scanPgEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: events iterate")
}

func scanPgEvent(row scannable) (*model.FactEvent, error) {
	var ev model.FactEvent
	var valueJSON []byte
	var supersedes, createdBy, reason *string

	err := row.Scan(&ev.ID, &ev.Seq, &ev.DealID, &ev.FactKey, &ev.Category, &valueJSON,
		&ev.DisplayValue, &ev.Source, &ev.SourceConfidence, &ev.EventType,
		&supersedes, &createdBy, &reason, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan event")
	}
	if err := json.Unmarshal(valueJSON, &ev.Value); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal event value")
	}
	ev.SupersedesEventID = deref(supersedes)
	ev.CreatedBy = deref(createdBy)
	ev.Reason = deref(reason)
	return &ev, nil
}

func scanPgReview(row scannable) (*model.PendingReview, error) {
	var r model.PendingReview
	var newJSON, existingJSON []byte

	err := row.Scan(&r.ID, &r.DealID, &r.FactKey, &r.Category,
		&newJSON, &r.NewDisplayValue, &r.NewSource, &r.NewConfidence,
		&r.ExistingEventID, &existingJSON, &r.ExistingDisplayValue,
		&r.ExistingSource, &r.ExistingConfidence,
		&r.ContradictionReason, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan review")
	}
	if err := json.Unmarshal(newJSON, &r.NewValue); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal review new value")
	}
	if err := json.Unmarshal(existingJSON, &r.ExistingValue); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal review existing value")
	}
	return &r, nil
}

func scanPgResolution(row scannable) (*model.AlertResolution, error) {
	var r model.AlertResolution
	var title, severity, category, createdBy *string

	err := row.Scan(&r.DealID, &r.AlertKey, &r.AlertType, &r.Status, &r.Justification,
		&title, &severity, &category, &createdBy, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan resolution")
	}
	r.AlertTitle = deref(title)
	r.AlertSeverity = model.Severity(deref(severity))
	r.AlertCategory = deref(category)
	r.CreatedBy = deref(createdBy)
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
