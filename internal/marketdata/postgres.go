package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dhkwon/talos/internal/contracts"
	"github.com/dhkwon/talos/pkg/database"
)

// PostgresStore reads daily closes and precomputed factor scores from
// the research database. Rows are append-only and keyed by trading day,
// so a query for a date returns exactly what was stored for that day;
// no forward-looking rows can leak into a historical lookup.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// PriceAt implements contracts.PriceSource. Missing rows map to
// ErrDataUnavailable so the engine skips the symbol for the cycle.
func (s *PostgresStore) PriceAt(ctx context.Context, symbol string, date time.Time) (float64, error) {
	var close float64
	err := s.db.Pool.QueryRow(ctx, `
		SELECT close
		FROM daily_prices
		WHERE symbol = $1 AND trade_date = $2
	`, symbol, date.Format("2006-01-02")).Scan(&close)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, contracts.ErrDataUnavailable
	}
	if err != nil {
		return 0, fmt.Errorf("query price %s@%s: %w", symbol, date.Format("2006-01-02"), err)
	}
	return close, nil
}

// Score implements contracts.Scorer over the factor_scores table.
func (s *PostgresStore) Score(ctx context.Context, symbol string, date time.Time) (contracts.FactorScores, error) {
	var scores contracts.FactorScores
	err := s.db.Pool.QueryRow(ctx, `
		SELECT fundamentals, momentum, quality, sentiment
		FROM factor_scores
		WHERE symbol = $1 AND score_date = $2
	`, symbol, date.Format("2006-01-02")).Scan(
		&scores.Fundamentals, &scores.Momentum, &scores.Quality, &scores.Sentiment,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.FactorScores{}, contracts.ErrDataUnavailable
	}
	if err != nil {
		return contracts.FactorScores{}, fmt.Errorf("query scores %s@%s: %w", symbol, date.Format("2006-01-02"), err)
	}
	return scores, nil
}

// SaveResultSummary persists a run summary for later comparison.
// Full results stay on disk; the table holds the headline numbers.
func (s *PostgresStore) SaveResultSummary(ctx context.Context, configHash string, startDate, endDate time.Time, finalValue, totalReturn, maxDrawdown float64, trades int) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO backtest_runs
			(config_hash, start_date, end_date, final_value, total_return, max_drawdown, trades, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (config_hash, start_date, end_date)
		DO UPDATE SET
			final_value = EXCLUDED.final_value,
			total_return = EXCLUDED.total_return,
			max_drawdown = EXCLUDED.max_drawdown,
			trades = EXCLUDED.trades,
			created_at = NOW()
	`, configHash, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"),
		finalValue, totalReturn, maxDrawdown, trades)
	if err != nil {
		return fmt.Errorf("save backtest summary: %w", err)
	}
	return nil
}
