package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/telemacho-dev/pressgen/internal/pipeline"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Subscription operations

func (s *Store) CreateSubscription(ctx context.Context, topic, scheduleCron string) (pipeline.Subscription, error) {
	var sub pipeline.Subscription
	if topic == "" || scheduleCron == "" {
		return sub, fmt.Errorf("topic and schedule_cron must be provided")
	}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO subscriptions (topic, schedule_cron) VALUES ($1,$2) RETURNING id, topic, schedule_cron, created_at`,
		topic, scheduleCron).Scan(&sub.ID, &sub.Topic, &sub.ScheduleCron, &sub.CreatedAt)
	return sub, err
}

func (s *Store) GetSubscription(ctx context.Context, id string) (pipeline.Subscription, bool, error) {
	var sub pipeline.Subscription
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, topic, schedule_cron, created_at FROM subscriptions WHERE id=$1`, id).
		Scan(&sub.ID, &sub.Topic, &sub.ScheduleCron, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return pipeline.Subscription{}, false, nil
	}
	if err != nil {
		return pipeline.Subscription{}, false, err
	}
	return sub, true, nil
}

// Generation operations

const generationColumns = `id, subscription_id, topic, schedule_cron, status, generation_context, generated_queries, research_results, content, error, created_at, updated_at, generated_at`

// CreateGeneration opens a new pending record, snapshotting the
// subscription's topic and schedule.
func (s *Store) CreateGeneration(ctx context.Context, subscriptionID string) (pipeline.Generation, error) {
	var gen pipeline.Generation
	sub, ok, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return gen, err
	}
	if !ok {
		return gen, fmt.Errorf("subscription %s: %w", subscriptionID, ErrNotFound)
	}
	row := s.DB.QueryRowContext(ctx,
		`INSERT INTO generations (subscription_id, topic, schedule_cron, status) VALUES ($1,$2,$3,$4) RETURNING `+generationColumns,
		sub.ID, sub.Topic, sub.ScheduleCron, string(pipeline.StatusPending))
	return scanGeneration(row)
}

func (s *Store) GetGeneration(ctx context.Context, id string) (pipeline.Generation, bool, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+generationColumns+` FROM generations WHERE id=$1`, id)
	gen, err := scanGeneration(row)
	if err == sql.ErrNoRows {
		return pipeline.Generation{}, false, nil
	}
	if err != nil {
		return pipeline.Generation{}, false, err
	}
	return gen, true, nil
}

// AdvanceStatus moves a record one step forward. Re-entering the target
// status is a no-op bump so a re-run stage passes its entry guard; backward
// or out-of-terminal moves return pipeline.ErrInvalidTransition.
func (s *Store) AdvanceStatus(ctx context.Context, id string, to pipeline.Status) error {
	preds := predecessors(to)
	if len(preds) == 0 {
		return fmt.Errorf("status %q: %w", to, pipeline.ErrInvalidTransition)
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE generations SET status=$2, updated_at=NOW() WHERE id=$1 AND status = ANY($3)`,
		id, string(to), pq.Array(preds))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionError(ctx, id, to)
	}
	return nil
}

// predecessors lists the statuses a record may hold when entering to. The
// target status itself is included so stage re-runs are idempotent.
func predecessors(to pipeline.Status) []string {
	switch to {
	case pipeline.StatusPlanning:
		return []string{string(pipeline.StatusPending), string(pipeline.StatusPlanning)}
	case pipeline.StatusResearching:
		return []string{string(pipeline.StatusPlanning), string(pipeline.StatusResearching)}
	case pipeline.StatusSynthesizing:
		return []string{string(pipeline.StatusResearching), string(pipeline.StatusSynthesizing)}
	default:
		return nil
	}
}

func (s *Store) transitionError(ctx context.Context, id string, to pipeline.Status) error {
	var current string
	err := s.DB.QueryRowContext(ctx, `SELECT status FROM generations WHERE id=$1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("generation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("generation %s: %s -> %s: %w", id, current, to, pipeline.ErrInvalidTransition)
}

// SaveQueryPlan persists stage-one output.
func (s *Store) SaveQueryPlan(ctx context.Context, id string, gc pipeline.GenerationContext, queries []string) error {
	ctxBytes, err := json.Marshal(gc)
	if err != nil {
		return fmt.Errorf("marshal generation context: %w", err)
	}
	queryBytes, err := json.Marshal(queries)
	if err != nil {
		return fmt.Errorf("marshal queries: %w", err)
	}
	return s.updateOne(ctx,
		`UPDATE generations SET generation_context=$2, generated_queries=$3, updated_at=NOW() WHERE id=$1`,
		id, ctxBytes, queryBytes)
}

// SaveResearchResults persists stage-two output. A nil or empty slice is
// stored as an empty JSON array, which is a valid research outcome.
func (s *Store) SaveResearchResults(ctx context.Context, id string, articles []pipeline.ResearchArticle) error {
	if articles == nil {
		articles = []pipeline.ResearchArticle{}
	}
	b, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("marshal research results: %w", err)
	}
	return s.updateOne(ctx,
		`UPDATE generations SET research_results=$2, updated_at=NOW() WHERE id=$1`, id, b)
}

// MarkSucceeded atomically records the final content and the success status,
// guarded on the synthesis phase so a failed or replayed record cannot be
// overwritten.
func (s *Store) MarkSucceeded(ctx context.Context, id string, content pipeline.Content) error {
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE generations SET status=$2, content=$3, error=NULL, generated_at=NOW(), updated_at=NOW() WHERE id=$1 AND status=$4`,
		id, string(pipeline.StatusSuccess), b, string(pipeline.StatusSynthesizing))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionError(ctx, id, pipeline.StatusSuccess)
	}
	return nil
}

// MarkFailed moves any non-terminal record to failed with a diagnostic
// message. Content is never written on this path.
func (s *Store) MarkFailed(ctx context.Context, id string, msg string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE generations SET status=$2, error=$3, updated_at=NOW() WHERE id=$1 AND status NOT IN ($4,$5)`,
		id, string(pipeline.StatusFailed), msg, string(pipeline.StatusSuccess), string(pipeline.StatusFailed))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionError(ctx, id, pipeline.StatusFailed)
	}
	return nil
}

// HasActiveGeneration reports whether the subscription already has a
// non-terminal generation in flight.
func (s *Store) HasActiveGeneration(ctx context.Context, subscriptionID string) (bool, error) {
	var active bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM generations WHERE subscription_id=$1 AND status NOT IN ($2,$3))`,
		subscriptionID, string(pipeline.StatusSuccess), string(pipeline.StatusFailed)).Scan(&active)
	return active, err
}

// ListStalled returns non-terminal records whose last mutation is older than
// the threshold.
func (s *Store) ListStalled(ctx context.Context, olderThan time.Duration) ([]pipeline.Generation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+generationColumns+` FROM generations WHERE status NOT IN ($1,$2) AND updated_at < NOW() - ($3 * INTERVAL '1 second') ORDER BY updated_at ASC`,
		string(pipeline.StatusSuccess), string(pipeline.StatusFailed), int64(olderThan/time.Second))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pipeline.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, gen)
	}
	return out, rows.Err()
}

// ClaimIdempotency attempts to register a processed event. It returns false
// if the key already exists.
func (s *Store) ClaimIdempotency(ctx context.Context, scope, key string) (bool, error) {
	if scope == "" || key == "" {
		return false, fmt.Errorf("scope and key must be provided")
	}
	var inserted bool
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO idempotency_keys (scope, key) VALUES ($1,$2) ON CONFLICT DO NOTHING RETURNING true`,
		scope, key).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *Store) updateOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGeneration(row rowScanner) (pipeline.Generation, error) {
	var (
		gen         pipeline.Generation
		status      string
		ctxBytes    []byte
		queryBytes  []byte
		resultBytes []byte
		contentByte []byte
		errMsg      sql.NullString
		generatedAt sql.NullTime
	)
	if err := row.Scan(&gen.ID, &gen.SubscriptionID, &gen.Topic, &gen.ScheduleCron, &status,
		&ctxBytes, &queryBytes, &resultBytes, &contentByte, &errMsg,
		&gen.CreatedAt, &gen.UpdatedAt, &generatedAt); err != nil {
		return pipeline.Generation{}, err
	}
	gen.Status = pipeline.Status(status)
	if len(ctxBytes) > 0 {
		var gc pipeline.GenerationContext
		if err := json.Unmarshal(ctxBytes, &gc); err != nil {
			return pipeline.Generation{}, fmt.Errorf("decode generation context: %w", err)
		}
		gen.GenerationContext = &gc
	}
	if len(queryBytes) > 0 {
		if err := json.Unmarshal(queryBytes, &gen.GeneratedQueries); err != nil {
			return pipeline.Generation{}, fmt.Errorf("decode generated queries: %w", err)
		}
	}
	if len(resultBytes) > 0 {
		if err := json.Unmarshal(resultBytes, &gen.ResearchResults); err != nil {
			return pipeline.Generation{}, fmt.Errorf("decode research results: %w", err)
		}
	}
	if len(contentByte) > 0 {
		var c pipeline.Content
		if err := json.Unmarshal(contentByte, &c); err != nil {
			return pipeline.Generation{}, fmt.Errorf("decode content: %w", err)
		}
		gen.Content = &c
	}
	if errMsg.Valid {
		gen.Error = errMsg.String
	}
	if generatedAt.Valid {
		t := generatedAt.Time
		gen.GeneratedAt = &t
	}
	return gen, nil
}
