package indicator

import (
	"errors"

	"github.com/markcheno/go-talib"
)

// MinCandles 为指标计算所需的最少K线数量，
// 不足时本轮决策直接跳过而不是硬算。
const MinCandles = 50

// ErrInsufficientData 表示K线数量不足以计算全套指标。
var ErrInsufficientData = errors.New("K线数据不足，无法计算指标")

// Snapshot 为一次指标计算的全部输出。
type Snapshot struct {
	Close      float64
	MA5        float64
	MA20       float64
	MA50       float64
	RSI        float64
	DIF        float64
	DEA        float64
	MACD       float64 // 柱状图，已按展示习惯放大一倍
	Volatility float64 // 20周期标准差/均值，百分比
	TrendScore int     // 0-100
}

// Compute 基于收盘价序列计算均线、RSI、MACD、波动率与趋势评分。
func Compute(closes []float64) (*Snapshot, error) {
	if len(closes) < MinCandles {
		return nil, ErrInsufficientData
	}

	last := len(closes) - 1
	closePrice := closes[last]

	ma5 := talib.Sma(closes, 5)[last]
	ma20 := talib.Sma(closes, 20)[last]
	ma50 := talib.Sma(closes, 50)[last]

	rsi := talib.Rsi(closes, 14)[last]

	dif, dea, hist := talib.Macd(closes, 12, 26, 9)
	macd := hist[last] * 2

	std := talib.StdDev(closes, 20, 1)[last]
	var volatility float64
	if ma20 > 0 {
		volatility = std / ma20 * 100
	}

	return &Snapshot{
		Close:      closePrice,
		MA5:        ma5,
		MA20:       ma20,
		MA50:       ma50,
		RSI:        rsi,
		DIF:        dif[last],
		DEA:        dea[last],
		MACD:       macd,
		Volatility: volatility,
		TrendScore: trendScore(closePrice, ma5, ma20, ma50, macd, rsi),
	}, nil
}

// trendScore 按四项条件给趋势强度打分。
//
//	均线多头排列  +40
//	价格站上MA5   +20
//	MACD柱为正    +20
//	RSI处于中性区 +20
func trendScore(close, ma5, ma20, ma50, macd, rsi float64) int {
	score := 0
	if ma5 > ma20 && ma20 > ma50 {
		score += 40
	}
	if close > ma5 {
		score += 20
	}
	if macd > 0 {
		score += 20
	}
	if rsi > 30 && rsi < 70 {
		score += 20
	}
	return score
}
