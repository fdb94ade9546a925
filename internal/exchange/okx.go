package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// okxGateway 基于 ccxt 的 OKX 适配器。
type okxGateway struct {
	ex *ccxt.Okx
}

// NewOKXGateway 按给定凭证与交易参数创建 OKX 会话。
// 会话与参数在创建时一一绑定，切换参数必须重新建立会话。
func NewOKXGateway(cfg Credentials, params TradingParams) (Gateway, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             string(params.Mode),
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}
	if cfg.Proxy != "" {
		userConfig["httpProxy"] = cfg.Proxy
		userConfig["httpsProxy"] = cfg.Proxy
	}

	ex := ccxt.NewOkx(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &okxGateway{ex: ex}, nil
}

func (g *okxGateway) LoadMarkets(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := g.ex.LoadMarkets(); err != nil {
		return g.wrap(err)
	}
	return nil
}

func (g *okxGateway) FetchBalance(ctx context.Context) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}

	raw, err := g.ex.FetchBalance()
	if err != nil {
		return Balance{}, g.wrap(err)
	}

	balance := Balance{
		Free:  make(map[string]float64, len(raw.Free)),
		Total: make(map[string]float64, len(raw.Total)),
	}
	for code, v := range raw.Free {
		if v != nil {
			balance.Free[code] = *v
		}
	}
	for code, v := range raw.Total {
		if v != nil {
			balance.Total[code] = *v
		}
	}

	return balance, nil
}

func (g *okxGateway) FetchPositions(ctx context.Context, symbol string) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := g.ex.FetchPositions()
	if err != nil {
		return nil, g.wrap(err)
	}

	positions := make([]Position, 0, 1)
	for _, p := range raw {
		sym := derefString(p.Symbol)
		if sym != symbol {
			continue
		}
		positions = append(positions, Position{
			Symbol:       sym,
			Contracts:    derefFloat(p.Contracts),
			ContractSize: derefFloat(p.ContractSize),
		})
	}

	return positions, nil
}

func (g *okxGateway) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	if err := ctx.Err(); err != nil {
		return Ticker{}, err
	}

	raw, err := g.ex.FetchTicker(symbol)
	if err != nil {
		return Ticker{}, g.wrap(err)
	}

	return Ticker{Last: derefFloat(raw.Last)}, nil
}

func (g *okxGateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	raw, err := g.ex.FetchOHLCV(
		symbol,
		ccxt.WithFetchOHLCVTimeframe(timeframe),
		ccxt.WithFetchOHLCVLimit(int64(limit)),
	)
	if err != nil {
		return nil, g.wrap(err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

func (g *okxGateway) FetchMyTrades(ctx context.Context, symbol string, limit int) ([]Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	raw, err := g.ex.FetchMyTrades(symbol, ccxt.WithFetchMyTradesLimit(int64(limit)))
	if err != nil {
		return nil, g.wrap(err)
	}

	fills := make([]Fill, 0, len(raw))
	for _, t := range raw {
		fills = append(fills, Fill{
			Price:     derefFloat(t.Price),
			Timestamp: time.UnixMilli(derefInt64(t.Timestamp)).UTC(),
		})
	}

	return fills, nil
}

func (g *okxGateway) CreateOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return OrderAck{}, err
	}

	opts := make([]ccxt.CreateOrderOptions, 0, 2)
	if req.Price > 0 {
		opts = append(opts, ccxt.WithCreateOrderPrice(req.Price))
	}
	if len(req.Params) > 0 {
		opts = append(opts, ccxt.WithCreateOrderParams(req.Params))
	}

	order, err := g.ex.CreateOrder(req.Symbol, req.Type, req.Side, req.Amount, opts...)
	if err != nil {
		return OrderAck{}, g.wrap(err)
	}

	return OrderAck{
		ID:     derefString(order.Id),
		Filled: derefFloat(order.Filled),
	}, nil
}

func (g *okxGateway) SetLeverage(ctx context.Context, leverage int, symbol string, params map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := make([]ccxt.SetLeverageOptions, 0, 2)
	opts = append(opts, ccxt.WithSetLeverageSymbol(symbol))
	if len(params) > 0 {
		opts = append(opts, ccxt.WithSetLeverageParams(params))
	}

	if _, err := g.ex.SetLeverage(int64(leverage), opts...); err != nil {
		return g.wrap(err)
	}

	return nil
}

func (g *okxGateway) PriceToPrecision(symbol string, price float64) (float64, error) {
	formatted := g.ex.PriceToPrecision(symbol, price)
	value, err := strconv.ParseFloat(formatted, 64)
	if err != nil {
		return 0, fmt.Errorf("价格精度处理失败 %q: %w", formatted, err)
	}
	return value, nil
}

func (g *okxGateway) AmountToPrecision(symbol string, amount float64) (float64, error) {
	formatted := g.ex.AmountToPrecision(symbol, amount)
	value, err := strconv.ParseFloat(formatted, 64)
	if err != nil {
		return 0, fmt.Errorf("数量精度处理失败 %q: %w", formatted, err)
	}
	return value, nil
}

func (g *okxGateway) ContractSize(symbol string) (float64, error) {
	market := g.ex.Market(symbol)
	marketMap, ok := market.(map[string]interface{})
	if !ok {
		return 1, nil
	}
	if v, ok := marketMap["contractSize"].(float64); ok && v > 0 {
		return v, nil
	}
	return 1, nil
}

func (g *okxGateway) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return err
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
