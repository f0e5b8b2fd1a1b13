package metrics

import (
	"math"
	"time"

	"github.com/wonny/quantlab/internal/contracts"
)

const (
	tradingDaysPerYear = 252
	daysPerYear        = 365.25
)

// Performance is the return/risk summary of one run
// ⭐ SSOT: 성과 지표 계산은 여기서만
type Performance struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	InitialEquity float64 `json:"initial_equity"`
	FinalEquity   float64 `json:"final_equity"`

	// 수익률
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`

	// 리스크 지표
	Volatility  float64 `json:"volatility"`
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"` // 양수 비율 (0.2 = -20%)
	VaR95       float64 `json:"var_95"`       // 일간 historical VaR (손실, 양수)
	CVaR95      float64 `json:"cvar_95"`      // VaR 이하 tail 평균 손실

	// 트레이딩 지표
	TradeCount    int     `json:"trade_count"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	Expectancy    float64 `json:"expectancy"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
	TotalFees     float64 `json:"total_fees"`
}

// Compute derives Performance from an equity curve and trade ledger.
// riskFreeRate is annual.
func Compute(curve contracts.EquityCurve, trades []contracts.Trade, riskFreeRate float64) Performance {
	var p Performance
	if len(curve) == 0 {
		return p
	}

	first, last := curve[0], curve[len(curve)-1]
	p.StartDate = first.Date
	p.EndDate = last.Date
	p.InitialEquity = first.Equity
	p.FinalEquity = last.Equity

	if first.Equity > 0 {
		p.TotalReturn = last.Equity/first.Equity - 1
	}
	p.AnnualizedReturn = annualize(p.TotalReturn, first.Date, last.Date)

	returns := curve.Returns()
	p.Volatility = stdDev(returns) * math.Sqrt(tradingDaysPerYear)
	p.Sharpe = sharpe(returns, riskFreeRate)
	p.Sortino = sortino(returns, riskFreeRate)
	p.MaxDrawdown = maxDrawdown(equityValues(curve))
	p.VaR95, p.CVaR95 = historicalVaR(returns, TailConfidence)

	tradeStats(&p, trades)
	return p
}

// annualize compounds over actual calendar time, not bar count
func annualize(totalReturn float64, from, to time.Time) float64 {
	years := to.Sub(from).Hours() / 24 / daysPerYear
	if years <= 0 {
		return 0
	}
	if totalReturn <= -1 {
		return -1
	}
	return math.Pow(1+totalReturn, 1/years) - 1
}

// sharpe = mean excess daily return / sample std × √252
func sharpe(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}
	return mean(excess(returns, riskFreeRate)) / sd * math.Sqrt(tradingDaysPerYear)
}

// sortino uses downside deviation of excess returns below zero
func sortino(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	ex := excess(returns, riskFreeRate)

	var sumSq float64
	for _, r := range ex {
		if r < 0 {
			sumSq += r * r
		}
	}
	downside := math.Sqrt(sumSq / float64(len(ex)))
	if downside == 0 {
		return 0
	}
	return mean(ex) / downside * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown returns the largest peak-to-trough decline as a positive fraction
func maxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// tradeStats fills win rate, expectancy and the win/loss breakdown
func tradeStats(p *Performance, trades []contracts.Trade) {
	p.TradeCount = len(trades)
	if len(trades) == 0 {
		return
	}

	var sumPnL, sumWin, sumLoss float64
	for _, t := range trades {
		sumPnL += t.PnL
		p.TotalFees += t.Fees
		switch {
		case t.PnL > 0:
			sumWin += t.PnL
			p.WinningTrades++
		case t.PnL < 0:
			sumLoss += t.PnL
			p.LosingTrades++
		}
	}

	p.WinRate = float64(p.WinningTrades) / float64(p.TradeCount)
	if p.WinningTrades > 0 {
		p.AvgWin = sumWin / float64(p.WinningTrades)
	}
	if p.LosingTrades > 0 {
		p.AvgLoss = sumLoss / float64(p.LosingTrades)
		p.ProfitFactor = sumWin / math.Abs(sumLoss)
	}

	// 손실 거래가 없으면 정규화 기준이 없으므로 0
	if p.AvgLoss != 0 {
		p.Expectancy = (sumPnL / float64(p.TradeCount)) / math.Abs(p.AvgLoss)
	}
}

func equityValues(curve contracts.EquityCurve) []float64 {
	out := make([]float64, len(curve))
	for i, pt := range curve {
		out[i] = pt.Equity
	}
	return out
}

func excess(returns []float64, riskFreeRate float64) []float64 {
	daily := riskFreeRate / tradingDaysPerYear
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - daily
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the sample standard deviation (n-1)
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var variance float64
	for _, x := range xs {
		d := x - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(xs)-1))
}
