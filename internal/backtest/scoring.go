package backtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dhkwon/talos/internal/contracts"
)

// scoredSymbol is one universe symbol with its point-in-time sub-scores
// and weighted composite for a rebalance date.
type scoredSymbol struct {
	Symbol    string
	Scores    contracts.FactorScores
	Composite float64
}

// scoreBoard collects the outcome of one scoring cycle.
type scoreBoard struct {
	scored   []scoredSymbol
	skipped  []string // symbols with no data this cycle
	failures []string // oracle failures (skipped, noted in provenance)
}

// scoreUniverse fans out oracle calls across a worker pool. Scoring a
// symbol is a pure function of point-in-time data, so parallelism is
// safe here; results are collected and sorted deterministically before
// any selection decision, so it never affects output. Missing data
// excludes a symbol for this cycle only and never aborts the run.
func (e *Engine) scoreUniverse(ctx context.Context, date time.Time, weights contracts.FactorWeights) scoreBoard {
	workers := e.config.ScoreWorkers
	if workers <= 0 {
		workers = defaultScoreWorkers
	}
	if workers > len(e.config.Universe) {
		workers = len(e.config.Universe)
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var board scoreBoard

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				scores, err := e.scoreSymbol(ctx, symbol, date)
				mu.Lock()
				switch {
				case errors.Is(err, contracts.ErrDataUnavailable):
					board.skipped = append(board.skipped, symbol)
				case err != nil:
					board.failures = append(board.failures, symbol)
				default:
					board.scored = append(board.scored, scoredSymbol{
						Symbol:    symbol,
						Scores:    scores,
						Composite: weights.Composite(scores),
					})
				}
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range e.config.Universe {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	// Deterministic order regardless of worker scheduling.
	sort.Slice(board.scored, func(i, j int) bool {
		return board.scored[i].Symbol < board.scored[j].Symbol
	})
	sort.Strings(board.skipped)
	sort.Strings(board.failures)

	return board
}

// scoreSymbol throttles and invokes the oracle for one symbol.
func (e *Engine) scoreSymbol(ctx context.Context, symbol string, date time.Time) (contracts.FactorScores, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return contracts.FactorScores{}, err
		}
	}
	return e.scorer.Score(ctx, symbol, date)
}

// rankByComposite orders candidates by composite score descending,
// breaking ties by symbol name ascending. The secondary key guarantees
// identical runs produce identical selections.
func rankByComposite(candidates []scoredSymbol) []scoredSymbol {
	ranked := make([]scoredSymbol, len(candidates))
	copy(ranked, candidates)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Composite != ranked[j].Composite {
			return ranked[i].Composite > ranked[j].Composite
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})
	return ranked
}

// newScoreLimiter builds the oracle-call limiter, or nil for unlimited.
func newScoreLimiter(callsPerSecond float64) *rate.Limiter {
	if callsPerSecond <= 0 {
		return nil
	}
	burst := int(callsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(callsPerSecond), burst)
}
