package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/service/database"
	"github.com/kapu/trendscope-go/internal/util"
)

const defaultRecentLimit = 20

// Store records analysis outcomes.
type Store interface {
	Save(ctx context.Context, req domain.AnalysisRequest, outcome *domain.Outcome) error
	Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}

type Repository struct {
	db     *database.DB
	clock  util.Clock
	logger *zap.Logger
}

func NewRepository(db *database.DB, clock util.Clock, logger *zap.Logger) *Repository {
	if clock == nil {
		clock = util.RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, clock: clock, logger: logger}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.db.Dialect() == database.DialectPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS analysis_history (
	id %s,
	request_key TEXT NOT NULL,
	keyword TEXT NOT NULL,
	source TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`, idColumn),
		`CREATE INDEX IF NOT EXISTS idx_analysis_history_created ON analysis_history (created_at)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.GetDB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure history schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) Save(ctx context.Context, req domain.AnalysisRequest, outcome *domain.Outcome) error {
	if outcome == nil {
		return nil
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	query := r.db.Rebind(`INSERT INTO analysis_history (request_key, keyword, source, payload, created_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := r.db.GetDB().ExecContext(ctx, query,
		req.DedupKey(), req.Keyword, string(outcome.Source), string(payload), r.clock.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}

	r.logger.Debug("History saved",
		zap.String("keyword", req.Keyword),
		zap.String("source", string(outcome.Source)),
	)
	return nil
}

// Recent returns the newest entries first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := r.db.Rebind(`SELECT id, request_key, keyword, source, payload, created_at FROM analysis_history ORDER BY created_at DESC, id DESC LIMIT ?`)
	rows, err := r.db.GetDB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     domain.HistoryEntry
			source    string
			payload   string
			createdAt time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.Key, &entry.Keyword, &source, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}

		var outcome domain.Outcome
		if err := json.Unmarshal([]byte(payload), &outcome); err != nil {
			r.logger.Warn("Skipping unreadable history row", zap.Int64("id", entry.ID), zap.Error(err))
			continue
		}
		entry.Source = domain.ResultSource(source)
		entry.Outcome = &outcome
		entry.CreatedAt = createdAt
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}

// Nop discards everything; used when HISTORY_DRIVER is none.
type Nop struct{}

func (Nop) Save(context.Context, domain.AnalysisRequest, *domain.Outcome) error { return nil }

func (Nop) Recent(context.Context, int) ([]domain.HistoryEntry, error) {
	return []domain.HistoryEntry{}, nil
}
