package exchange

import (
	"strings"
	"time"
)

// Mode 表示交易模式。
type Mode string

const (
	// ModeSpot 现货模式。
	ModeSpot Mode = "spot"
	// ModeSwap USDT本位永续合约模式。
	ModeSwap Mode = "swap"
)

// DustEpsilon 为尘埃阈值，低于该数量的持仓视为空仓。
const DustEpsilon = 1e-4

// SettleCurrency 为合约结算币种后缀。
const SettleCurrency = "USDT"

// TradingParams 为一组不可变的交易参数快照，
// 只会被一次成功的热切换整体替换，不做原地修改。
type TradingParams struct {
	Symbol   string
	Mode     Mode
	Leverage int
}

// TradingSymbol 返回当前模式下正确格式的交易对符号。
//
// OKX 符号格式:
//   - 现货: BTC/USDT
//   - 合约: BTC/USDT:USDT (USDT本位永续)
func (p TradingParams) TradingSymbol() string {
	if p.Mode == ModeSwap {
		if !strings.Contains(p.Symbol, ":") {
			return p.Symbol + ":" + SettleCurrency
		}
		return p.Symbol
	}
	if idx := strings.Index(p.Symbol, ":"); idx >= 0 {
		return p.Symbol[:idx]
	}
	return p.Symbol
}

// BaseCoin 返回交易对的基础币种，如 BTC/USDT -> BTC。
func (p TradingParams) BaseCoin() string {
	s := p.Symbol
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, "/"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// QuoteCoin 返回交易对的计价币种，如 BTC/USDT -> USDT。
func (p TradingParams) QuoteCoin() string {
	s := p.Symbol
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return SettleCurrency
}

// AccountSnapshot 为两条巡航循环与执行器共享的账户快照，
// 所有字段都由 Manager 内部的同一把账户锁保护。
type AccountSnapshot struct {
	Balance          float64    // 计价币可用余额
	Position         float64    // 持仓数量（币）
	EntryPrice       float64    // 入场价，空仓时为0
	PeakBalance      float64    // 峰值资产，仅空仓时更新
	InitialCapital   float64    // 初始本金，只会从0变为正值一次
	PositionOpenTime *time.Time // 开仓时间，空仓时为nil
	LastTradeTime    time.Time  // 最近一次卖出成交时间，冷却期基准
}

// TotalAsset 按给定现价折算总资产。
func (s AccountSnapshot) TotalAsset(price float64) float64 {
	return s.Balance + s.Position*price
}

// Holding 返回是否持有超过尘埃阈值的仓位。
func (s AccountSnapshot) Holding() bool {
	return s.Position > DustEpsilon
}

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Closes 提取K线收盘价序列。
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}
