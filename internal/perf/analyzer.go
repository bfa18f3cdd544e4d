package perf

import (
	"fmt"
	"math"
	"time"

	"github.com/dhkwon/talos/internal/contracts"
)

// Metrics is the summary statistics block of a backtest result.
type Metrics struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Years     float64   `json:"years"`

	// Returns
	TotalReturn float64 `json:"total_return"`
	CAGR        float64 `json:"cagr"`

	// Risk
	Volatility  float64 `json:"volatility"` // annualized
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"` // positive fraction
	Calmar      float64 `json:"calmar"`

	// Benchmark comparison
	Alpha                float64 `json:"alpha"`
	Beta                 float64 `json:"beta"`
	BenchmarkReturn      float64 `json:"benchmark_return"`
	VsBenchmark          float64 `json:"vs_benchmark"` // simple return difference
	IndexReturn          float64 `json:"index_return"`
	VsIndex              float64 `json:"vs_index"`
	BenchmarkUnavailable bool    `json:"benchmark_unavailable,omitempty"`

	// Trading
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
}

// Analyzer converts an equity curve and trade log into summary
// statistics. It is stateless; thresholds come from construction.
type Analyzer struct {
	riskFreeRate   float64 // annualized
	periodsPerYear float64 // 252 for daily curves
}

// NewAnalyzer creates an Analyzer. periodsPerYear annualizes periodic
// returns (252 for daily observations).
func NewAnalyzer(riskFreeRate float64, periodsPerYear float64) *Analyzer {
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}
	return &Analyzer{
		riskFreeRate:   riskFreeRate,
		periodsPerYear: periodsPerYear,
	}
}

// Analyze computes metrics from the equity curve, trade log, and
// optional benchmark/index curves (nil skips the comparison block).
func (a *Analyzer) Analyze(equity []contracts.EquityPoint, trades []contracts.ClosedTrade, benchmark, index []contracts.EquityPoint) (*Metrics, error) {
	if len(equity) < 2 {
		return nil, fmt.Errorf("equity curve needs at least 2 points, got %d", len(equity))
	}

	m := &Metrics{
		StartDate: equity[0].Date,
		EndDate:   equity[len(equity)-1].Date,
	}

	initial := equity[0].Value
	final := equity[len(equity)-1].Value
	if initial <= 0 {
		return nil, fmt.Errorf("initial equity must be > 0, got %.2f", initial)
	}

	m.TotalReturn = final/initial - 1

	// CAGR over elapsed calendar years.
	m.Years = m.EndDate.Sub(m.StartDate).Hours() / 24 / 365.25
	if m.Years > 0 {
		m.CAGR = math.Pow(final/initial, 1/m.Years) - 1
	}

	returns := periodicReturns(equity)
	m.Volatility = stddev(returns) * math.Sqrt(a.periodsPerYear)

	meanExcess := mean(returns)*a.periodsPerYear - a.riskFreeRate
	if m.Volatility > 0 {
		m.Sharpe = meanExcess / m.Volatility
	}

	downside := downsideDeviation(returns) * math.Sqrt(a.periodsPerYear)
	if downside > 0 {
		m.Sortino = meanExcess / downside
	}

	m.MaxDrawdown = maxDrawdown(equity)
	if m.MaxDrawdown > 0 {
		m.Calmar = m.CAGR / m.MaxDrawdown
	}

	a.compareBenchmark(m, equity, benchmark, index)
	a.tradeStats(m, trades)

	return m, nil
}

// compareBenchmark fills alpha/beta via OLS of periodic excess returns
// plus the simple outperformance differences. Holidays leave gaps in a
// buy-and-hold series while the portfolio curve records every weekday,
// so returns are paired over the dates both curves share, never by
// slice index.
func (a *Analyzer) compareBenchmark(m *Metrics, equity, benchmark, index []contracts.EquityPoint) {
	if len(benchmark) < 2 {
		m.BenchmarkUnavailable = true
		return
	}

	m.BenchmarkReturn = benchmark[len(benchmark)-1].Value/benchmark[0].Value - 1
	m.VsBenchmark = m.TotalReturn - m.BenchmarkReturn

	y, x := alignedReturns(equity, benchmark)
	if len(x) >= 2 {
		rf := a.riskFreeRate / a.periodsPerYear
		for i := range x {
			x[i] -= rf
			y[i] -= rf
		}
		slope, intercept := linearRegression(x, y)
		m.Beta = slope
		m.Alpha = intercept * a.periodsPerYear // annualized
	}

	if len(index) >= 2 {
		m.IndexReturn = index[len(index)-1].Value/index[0].Value - 1
		m.VsIndex = m.TotalReturn - m.IndexReturn
	}
}

func (a *Analyzer) tradeStats(m *Metrics, trades []contracts.ClosedTrade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var wins, losses int
	var sumWin, sumLoss float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			sumWin += t.PnL
		} else if t.PnL < 0 {
			losses++
			sumLoss += math.Abs(t.PnL)
		}
	}

	m.WinRate = float64(wins) / float64(len(trades))
	if wins > 0 {
		m.AvgWin = sumWin / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = -sumLoss / float64(losses)
	}
	if sumLoss > 0 {
		m.ProfitFactor = sumWin / sumLoss
	}
}

// alignedReturns computes period returns over the dates present in both
// curves, keeping the two series in lockstep across gaps in either one.
func alignedReturns(portfolio, benchmark []contracts.EquityPoint) (p, b []float64) {
	benchValues := make(map[time.Time]float64, len(benchmark))
	for _, pt := range benchmark {
		benchValues[pt.Date] = pt.Value
	}

	var prevP, prevB float64
	for _, pt := range portfolio {
		bv, ok := benchValues[pt.Date]
		if !ok {
			continue
		}
		if prevP > 0 && prevB > 0 {
			p = append(p, pt.Value/prevP-1)
			b = append(b, bv/prevB-1)
		}
		prevP, prevB = pt.Value, bv
	}
	return p, b
}

// periodicReturns converts an equity curve to simple period returns.
func periodicReturns(curve []contracts.EquityPoint) []float64 {
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev <= 0 {
			continue
		}
		returns = append(returns, curve[i].Value/prev-1)
	}
	return returns
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	variance := 0.0
	for _, x := range xs {
		diff := x - m
		variance += diff * diff
	}
	variance /= float64(len(xs) - 1)
	return math.Sqrt(variance)
}

// downsideDeviation restricts the deviation to negative returns,
// measured around zero.
func downsideDeviation(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	var count int
	for _, x := range xs {
		if x < 0 {
			sumSq += x * x
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(count))
}

// maxDrawdown is the largest peak-to-trough decline, as a positive
// fraction of the peak.
func maxDrawdown(curve []contracts.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Value
	maxDD := 0.0
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := (peak - p.Value) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// linearRegression returns the OLS slope and intercept of y on x.
func linearRegression(x, y []float64) (slope, intercept float64) {
	n := float64(len(x))
	if n == 0 || len(x) != len(y) {
		return 0, 0
	}
	meanX := mean(x)
	meanY := mean(y)

	var covXY, varX float64
	for i := range x {
		dx := x[i] - meanX
		covXY += dx * (y[i] - meanY)
		varX += dx * dx
	}
	if varX == 0 {
		return 0, meanY
	}
	slope = covXY / varX
	intercept = meanY - slope*meanX
	return slope, intercept
}
