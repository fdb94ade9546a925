package exchange

import (
	"context"
	"time"
)

// Balance 为账户余额快照。
type Balance struct {
	Free  map[string]float64
	Total map[string]float64
}

// Position 表示交易所返回的单个持仓。
type Position struct {
	Symbol       string
	Contracts    float64
	ContractSize float64
}

// Qty 返回持仓折算成币的数量。
func (p Position) Qty() float64 {
	size := p.ContractSize
	if size <= 0 {
		size = 1
	}
	return p.Contracts * size
}

// Ticker 为最新成交行情。
type Ticker struct {
	Last float64
}

// Fill 为历史成交记录。
type Fill struct {
	Price     float64
	Timestamp time.Time
}

// OrderRequest 描述一笔委托。
type OrderRequest struct {
	Symbol string
	Type   string // limit | market
	Side   string // buy | sell
	Amount float64
	Price  float64 // 市价单为0
	Params map[string]interface{}
}

// OrderAck 为交易所的下单回执。
type OrderAck struct {
	ID     string
	Filled float64
}

// Gateway 抽象交易所能力，所有核心组件只依赖该接口，
// 每个具体 SDK 对应一个适配器实现。
type Gateway interface {
	LoadMarkets(ctx context.Context) error
	FetchBalance(ctx context.Context) (Balance, error)
	FetchPositions(ctx context.Context, symbol string) ([]Position, error)
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	FetchMyTrades(ctx context.Context, symbol string, limit int) ([]Fill, error)
	CreateOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	SetLeverage(ctx context.Context, leverage int, symbol string, params map[string]interface{}) error

	// 精度处理
	PriceToPrecision(symbol string, price float64) (float64, error)
	AmountToPrecision(symbol string, amount float64) (float64, error)
	ContractSize(symbol string) (float64, error)
}

// Dialer 根据凭证与交易参数建立一个新的交易所会话。
type Dialer func(cfg Credentials, params TradingParams) (Gateway, error)

// Credentials 为交易所连接凭证。
type Credentials struct {
	APIKey     string
	APISecret  string
	APIPass    string
	UseSandbox bool
	Proxy      string
}
