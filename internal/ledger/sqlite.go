package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Serialize the read-then-write transactions on a single connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS deals (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	company    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fact_events (
	id                  TEXT PRIMARY KEY,
	seq                 INTEGER NOT NULL,
	deal_id             TEXT NOT NULL REFERENCES deals(id),
	fact_key            TEXT NOT NULL,
	category            TEXT NOT NULL,
	value               TEXT NOT NULL,
	display_value       TEXT NOT NULL,
	source              TEXT NOT NULL,
	source_confidence   INTEGER NOT NULL,
	event_type          TEXT NOT NULL,
	supersedes_event_id TEXT REFERENCES fact_events(id),
	created_by          TEXT,
	reason              TEXT,
	created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_reviews (
	id                     TEXT PRIMARY KEY,
	deal_id                TEXT NOT NULL REFERENCES deals(id),
	fact_key               TEXT NOT NULL,
	category               TEXT NOT NULL,
	new_value              TEXT NOT NULL,
	new_display_value      TEXT NOT NULL,
	new_source             TEXT NOT NULL,
	new_confidence         INTEGER NOT NULL,
	existing_event_id      TEXT NOT NULL,
	existing_value         TEXT NOT NULL,
	existing_display_value TEXT NOT NULL,
	existing_source        TEXT NOT NULL,
	existing_confidence    INTEGER NOT NULL,
	contradiction_reason   TEXT NOT NULL,
	created_at             DATETIME NOT NULL
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
	created_at     DATETIME NOT NULL,
	PRIMARY KEY (deal_id, alert_key)
);

CREATE INDEX IF NOT EXISTS idx_fact_events_deal_key ON fact_events(deal_id, fact_key);
CREATE INDEX IF NOT EXISTS idx_fact_events_type ON fact_events(deal_id, fact_key, event_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fact_events_live ON fact_events(deal_id, fact_key) WHERE event_type = 'CREATED';
CREATE INDEX IF NOT EXISTS idx_pending_reviews_deal ON pending_reviews(deal_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDeal(ctx context.Context, deal model.Deal) (*model.Deal, error) {
	if deal.ID == "" {
		deal.ID = uuid.New().String()
	}
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (id, name, company, created_at) VALUES (?, ?, ?, ?)`,
		deal.ID, deal.Name, deal.Company, deal.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert deal")
	}
	return &deal, nil
}

func (s *SQLiteStore) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, company, created_at FROM deals WHERE id = ?`, dealID,
	)
	var d model.Deal
	var company sql.NullString
	err := row.Scan(&d.ID, &d.Name, &company, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "deal", ID: dealID}
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get deal")
	}
	d.Company = company.String
	return &d, nil
}

func (s *SQLiteStore) ListDeals(ctx context.Context) ([]model.Deal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, company, created_at FROM deals ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		var company sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &company, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		d.Company = company.String
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "sqlite: list deals iterate")
}

const sqliteEventColumns = `id, seq, deal_id, fact_key, category, value, display_value,
	source, source_confidence, event_type, supersedes_event_id, created_by, reason, created_at`

func (s *SQLiteStore) EventsForFact(ctx context.Context, dealID, factKey string) ([]model.FactEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM fact_events
		 WHERE deal_id = ? AND fact_key = ? ORDER BY created_at, seq`,
		dealID, factKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: events for fact")
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *SQLiteStore) EventsForDeal(ctx context.Context, dealID string) ([]model.FactEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM fact_events
		 WHERE deal_id = ? ORDER BY created_at, seq`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: events for deal")
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev model.FactEvent, supersedesID string) (*model.FactEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback()

	if err := appendEventTx(ctx, sqliteExecutor{tx}, &ev, supersedesID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit append")
	}
	return &ev, nil
}

func (s *SQLiteStore) CreateReview(ctx context.Context, review model.PendingReview) (*model.PendingReview, error) {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	newJSON, err := json.Marshal(review.NewValue)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal new value")
	}
	existingJSON, err := json.Marshal(review.ExistingValue)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal existing value")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_reviews (id, deal_id, fact_key, category,
			new_value, new_display_value, new_source, new_confidence,
			existing_event_id, existing_value, existing_display_value, existing_source, existing_confidence,
			contradiction_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		review.ID, review.DealID, review.FactKey, string(review.Category),
		string(newJSON), review.NewDisplayValue, review.NewSource, review.NewConfidence,
		review.ExistingEventID, string(existingJSON), review.ExistingDisplayValue,
		review.ExistingSource, review.ExistingConfidence,
		review.ContradictionReason, review.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert review")
	}
	return &review, nil
}

const sqliteReviewColumns = `id, deal_id, fact_key, category,
	new_value, new_display_value, new_source, new_confidence,
	existing_event_id, existing_value, existing_display_value, existing_source, existing_confidence,
	contradiction_reason, created_at`

func (s *SQLiteStore) OpenReviews(ctx context.Context, dealID string) ([]model.PendingReview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteReviewColumns+` FROM pending_reviews
		 WHERE deal_id = ? ORDER BY created_at`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open reviews")
	}
	defer rows.Close()

	var reviews []model.PendingReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, eris.Wrap(rows.Err(), "sqlite: open reviews iterate")
}

func (s *SQLiteStore) GetReview(ctx context.Context, dealID, reviewID string) (*model.PendingReview, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteReviewColumns+` FROM pending_reviews WHERE deal_id = ? AND id = ?`,
		dealID, reviewID,
	)
	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "review", ID: reviewID}
	}
	return r, err
}

func (s *SQLiteStore) ApplyResolution(ctx context.Context, w ResolutionWrite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin resolution")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM pending_reviews WHERE id = ?`, w.ReviewID)
	if err != nil {
		return eris.Wrap(err, "sqlite: consume review")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &StaleReviewError{ReviewID: w.ReviewID}
	}

	if w.NewEvent != nil {
		if err := appendEventTx(ctx, sqliteExecutor{tx}, w.NewEvent, w.SupersedeID); err != nil {
			return err
		}
	}
	if w.AuditEvent != nil {
		if err := insertEventTx(ctx, sqliteExecutor{tx}, w.AuditEvent); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit resolution")
}

func (s *SQLiteStore) UpsertResolution(ctx context.Context, res model.AlertResolution) (*model.AlertResolution, error) {
	if err := validateResolution(&res); err != nil {
		return nil, err
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_resolutions (deal_id, alert_key, alert_type, status, justification,
			alert_title, alert_severity, alert_category, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (deal_id, alert_key) DO UPDATE SET
			status = excluded.status,
			justification = excluded.justification,
			alert_title = excluded.alert_title,
			alert_severity = excluded.alert_severity,
			alert_category = excluded.alert_category,
			created_by = excluded.created_by,
			created_at = excluded.created_at`,
		res.DealID, res.AlertKey, string(res.AlertType), string(res.Status), res.Justification,
		res.AlertTitle, string(res.AlertSeverity), res.AlertCategory, res.CreatedBy, res.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert resolution")
	}
	return &res, nil
}

func (s *SQLiteStore) GetResolution(ctx context.Context, dealID, alertKey string) (*model.AlertResolution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT deal_id, alert_key, alert_type, status, justification,
			alert_title, alert_severity, alert_category, created_by, created_at
		 FROM alert_resolutions WHERE deal_id = ? AND alert_key = ?`,
		dealID, alertKey,
	)
	r, err := scanResolution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListResolutions(ctx context.Context, dealID string) ([]model.AlertResolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT deal_id, alert_key, alert_type, status, justification,
			alert_title, alert_severity, alert_category, created_by, created_at
		 FROM alert_resolutions WHERE deal_id = ? ORDER BY created_at`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list resolutions")
	}
	defer rows.Close()

	var out []model.AlertResolution
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list resolutions iterate")
}

func (s *SQLiteStore) DeleteResolution(ctx context.Context, dealID, alertKey string) error {
	// Hard delete; removing an absent resolution is a no-op so unresolve is
	// always permitted.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM alert_resolutions WHERE deal_id = ? AND alert_key = ?`,
		dealID, alertKey,
	)
	return eris.Wrap(err, "sqlite: delete resolution")
}

// transaction helpers shared with the postgres driver

type executor interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryLive(ctx context.Context, dealID, factKey string) ([]string, error)
	nextSeq(ctx context.Context) (int64, error)
	insertEvent(ctx context.Context, ev *model.FactEvent) error
}

type sqliteExecutor struct {
	tx *sql.Tx
}

func (e sqliteExecutor) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: exec")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (e sqliteExecutor) queryLive(ctx context.Context, dealID, factKey string) ([]string, error) {
	rows, err := e.tx.QueryContext(ctx,
		`SELECT id FROM fact_events WHERE deal_id = ? AND fact_key = ? AND event_type = ?`,
		dealID, factKey, string(model.EventCreated),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query live events")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan live id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: live events iterate")
}

func (e sqliteExecutor) nextSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := e.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM fact_events`,
	).Scan(&seq)
	return seq, eris.Wrap(err, "sqlite: next seq")
}

func (e sqliteExecutor) insertEvent(ctx context.Context, ev *model.FactEvent) error {
	valueJSON, err := json.Marshal(ev.Value)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal value")
	}
	_, err = e.tx.ExecContext(ctx,
		`INSERT INTO fact_events (id, seq, deal_id, fact_key, category, value, display_value,
			source, source_confidence, event_type, supersedes_event_id, created_by, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Seq, ev.DealID, ev.FactKey, string(ev.Category), string(valueJSON), ev.DisplayValue,
		ev.Source, ev.SourceConfidence, string(ev.EventType),
		nullString(ev.SupersedesEventID), nullString(ev.CreatedBy), nullString(ev.Reason), ev.CreatedAt,
	)
	// The partial unique index on live CREATED rows backstops the stale check
	// for writers that raced past it.
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &StaleReviewError{}
	}
	return eris.Wrap(err, "sqlite: insert event")
}

// appendEventTx performs the supersede-then-create write inside an open
// transaction: verify no live CREATED event exists other than supersedesID,
// flip the old row to SUPERSEDED, insert the new row. A mismatch in the live
// set means the caller's read is stale.
func appendEventTx(ctx context.Context, ex executor, ev *model.FactEvent, supersedesID string) error {
	live, err := ex.queryLive(ctx, ev.DealID, ev.FactKey)
	if err != nil {
		return err
	}
	for _, id := range live {
		if id != supersedesID {
			return &StaleReviewError{}
		}
	}
	if supersedesID != "" {
		found := false
		for _, id := range live {
			if id == supersedesID {
				found = true
			}
		}
		if !found {
			return &StaleReviewError{}
		}
		n, err := ex.exec(ctx,
			`UPDATE fact_events SET event_type = 'SUPERSEDED' WHERE id = ? AND event_type = 'CREATED'`,
			supersedesID,
		)
		if err != nil {
			return err
		}
		if n == 0 {
			return &StaleReviewError{}
		}
		ev.SupersedesEventID = supersedesID
	}
	return insertEventTx(ctx, ex, ev)
}

func insertEventTx(ctx context.Context, ex executor, ev *model.FactEvent) error {
	seq, err := ex.nextSeq(ctx)
	if err != nil {
		return err
	}
	ev.Seq = seq
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return ex.insertEvent(ctx, ev)
}

// scan helpers

type scannable interface {
	Scan(dest ...any) error
}

func collectEvents(rows *sql.Rows) ([]model.FactEvent, error) {
	var events []model.FactEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: events iterate")
}

func scanEvent(row scannable) (*model.FactEvent, error) {
	var ev model.FactEvent
	var valueJSON string
	var supersedes, createdBy, reason sql.NullString

	err := row.Scan(&ev.ID, &ev.Seq, &ev.DealID, &ev.FactKey, &ev.Category, &valueJSON,
		&ev.DisplayValue, &ev.Source, &ev.SourceConfidence, &ev.EventType,
		&supersedes, &createdBy, &reason, &ev.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "scan event")
	}
	if err := json.Unmarshal([]byte(valueJSON), &ev.Value); err != nil {
		return nil, eris.Wrap(err, "unmarshal event value")
	}
	ev.SupersedesEventID = supersedes.String
	ev.CreatedBy = createdBy.String
	ev.Reason = reason.String
	return &ev, nil
}

func scanReview(row scannable) (*model.PendingReview, error) {
	var r model.PendingReview
	var newJSON, existingJSON string

	err := row.Scan(&r.ID, &r.DealID, &r.FactKey, &r.Category,
		&newJSON, &r.NewDisplayValue, &r.NewSource, &r.NewConfidence,
		&r.ExistingEventID, &existingJSON, &r.ExistingDisplayValue,
		&r.ExistingSource, &r.ExistingConfidence,
		&r.ContradictionReason, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan review")
	}
	if err := json.Unmarshal([]byte(newJSON), &r.NewValue); err != nil {
		return nil, eris.Wrap(err, "unmarshal review new value")
	}
	if err := json.Unmarshal([]byte(existingJSON), &r.ExistingValue); err != nil {
		return nil, eris.Wrap(err, "unmarshal review existing value")
	}
	return &r, nil
}

func scanResolution(row scannable) (*model.AlertResolution, error) {
	var r model.AlertResolution
	var title, severity, category, createdBy sql.NullString

	err := row.Scan(&r.DealID, &r.AlertKey, &r.AlertType, &r.Status, &r.Justification,
		&title, &severity, &category, &createdBy, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "scan resolution")
	}
	r.AlertTitle = title.String
	r.AlertSeverity = model.Severity(severity.String)
	r.AlertCategory = category.String
	r.CreatedBy = createdBy.String
	return &r, nil
}

func validateResolution(res *model.AlertResolution) error {
	res.Justification = strings.TrimSpace(res.Justification)
	if res.Justification == "" {
		return NewValidationError("justification", "must not be empty")
	}
	if res.AlertKey == "" {
		return NewValidationError("alert_key", "must not be empty")
	}
	switch res.Status {
	case model.StatusResolved, model.StatusAccepted:
	default:
		return NewValidationError("status", "must be RESOLVED or ACCEPTED")
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
