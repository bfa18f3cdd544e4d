package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/dhkwon/talos/internal/contracts"
)

const dayKey = "2006-01-02"

// MemoryStore is an in-memory PriceSource and Scorer. It backs tests
// and file-driven runs where no database is configured. Absent entries
// return ErrDataUnavailable, same as the postgres source.
type MemoryStore struct {
	mu     sync.RWMutex
	prices map[string]map[string]float64               // symbol -> date -> close
	scores map[string]map[string]contracts.FactorScores // symbol -> date -> scores
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices: make(map[string]map[string]float64),
		scores: make(map[string]map[string]contracts.FactorScores),
	}
}

// SetPrice records a closing price for a symbol/date.
func (s *MemoryStore) SetPrice(symbol string, date time.Time, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prices[symbol] == nil {
		s.prices[symbol] = make(map[string]float64)
	}
	s.prices[symbol][date.Format(dayKey)] = price
}

// SetPriceSeries records consecutive weekday closes starting at start.
// Weekends are skipped, matching the engine's trading-day iteration.
func (s *MemoryStore) SetPriceSeries(symbol string, start time.Time, closes []float64) {
	day := start
	for _, price := range closes {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		s.SetPrice(symbol, day, price)
		day = day.AddDate(0, 0, 1)
	}
}

// SetScores records factor scores for a symbol/date.
func (s *MemoryStore) SetScores(symbol string, date time.Time, scores contracts.FactorScores) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scores[symbol] == nil {
		s.scores[symbol] = make(map[string]contracts.FactorScores)
	}
	s.scores[symbol][date.Format(dayKey)] = scores
}

// SetConstantScores applies the same scores to every date for a symbol.
func (s *MemoryStore) SetConstantScores(symbol string, scores contracts.FactorScores) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scores[symbol] == nil {
		s.scores[symbol] = make(map[string]contracts.FactorScores)
	}
	s.scores[symbol]["*"] = scores
}

// PriceAt implements contracts.PriceSource.
func (s *MemoryStore) PriceAt(_ context.Context, symbol string, date time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if series, ok := s.prices[symbol]; ok {
		if price, ok := series[date.Format(dayKey)]; ok {
			return price, nil
		}
	}
	return 0, contracts.ErrDataUnavailable
}

// Score implements contracts.Scorer. A dated entry wins over the
// constant fallback.
func (s *MemoryStore) Score(_ context.Context, symbol string, date time.Time) (contracts.FactorScores, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.scores[symbol]
	if !ok {
		return contracts.FactorScores{}, contracts.ErrDataUnavailable
	}
	if scores, ok := series[date.Format(dayKey)]; ok {
		return scores, nil
	}
	if scores, ok := series["*"]; ok {
		return scores, nil
	}
	return contracts.FactorScores{}, contracts.ErrDataUnavailable
}
