package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"ai-cruise/internal/exchange"
)

// 委托方向。
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Result 为一次下单的执行结果。
type Result struct {
	OrderID   string
	Side      string
	Price     float64 // 限价单的委托价，市价单为0
	Amount    float64 // 实际提交的数量: 现货为币，合约为张
	Contracts bool    // Amount 是否以张为单位
}

// Executor 负责把决策层的买卖意图转换为交易所委托。
// 会话与参数总是通过 Manager 成对获取，热切换期间不会拿到错配组合。
type Executor struct {
	mgr      *exchange.Manager
	slippage float64
	logger   *zap.Logger
}

// NewExecutor 创建订单执行器，slippage 为限价单允许的滑点比例。
func NewExecutor(mgr *exchange.Manager, slippage float64, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{mgr: mgr, slippage: slippage, logger: logger}
}

// PlaceLimitWithStop 按当前市价加滑点挂限价单，并随单附带条件止损。
// qty 以币计价；合约模式下会折算成整数张，不足一张时拒绝下单且不改动任何状态。
func (e *Executor) PlaceLimitWithStop(ctx context.Context, side string, qty, marketPrice, stopLoss float64) (*Result, error) {
	gw, params := e.mgr.Session()
	if gw == nil {
		return nil, exchange.ErrConnection
	}
	if qty <= 0 || marketPrice <= 0 {
		return nil, fmt.Errorf("非法的下单参数: qty=%v price=%v", qty, marketPrice)
	}

	symbol := params.TradingSymbol()

	limitPrice := marketPrice * (1 + e.slippage)
	if side == SideSell {
		limitPrice = marketPrice * (1 - e.slippage)
	}
	limitPrice, err := gw.PriceToPrecision(symbol, limitPrice)
	if err != nil {
		return nil, err
	}

	amount, inContracts, err := e.orderAmount(gw, params, symbol, qty, marketPrice)
	if err != nil {
		return nil, err
	}

	orderParams := e.tradeParams(params)
	if stopLoss > 0 {
		stopPx, err := gw.PriceToPrecision(symbol, stopLoss)
		if err != nil {
			return nil, err
		}
		// slOrdPx=-1 表示触发后以市价止损
		orderParams["slTriggerPx"] = fmt.Sprintf("%v", stopPx)
		orderParams["slOrdPx"] = "-1"
		if side == SideBuy {
			orderParams["tpSlSide"] = SideSell
		} else {
			orderParams["tpSlSide"] = SideBuy
		}
	}

	ack, err := gw.CreateOrder(ctx, exchange.OrderRequest{
		Symbol: symbol,
		Type:   "limit",
		Side:   side,
		Amount: amount,
		Price:  limitPrice,
		Params: orderParams,
	})
	if err != nil {
		return nil, fmt.Errorf("下单失败: %w", err)
	}

	e.logger.Info("限价单已提交",
		zap.String("order_id", ack.ID),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("price", limitPrice),
		zap.Float64("amount", amount),
		zap.Bool("in_contracts", inContracts),
		zap.Float64("stop_loss", stopLoss))

	e.recordFill(side, limitPrice)

	return &Result{
		OrderID:   ack.ID,
		Side:      side,
		Price:     limitPrice,
		Amount:    amount,
		Contracts: inContracts,
	}, nil
}

// PlaceMarket 以市价立即成交，用于紧急平仓等不计滑点的场景。
func (e *Executor) PlaceMarket(ctx context.Context, side string, qty, marketPrice float64) (*Result, error) {
	gw, params := e.mgr.Session()
	if gw == nil {
		return nil, exchange.ErrConnection
	}
	if qty <= 0 || marketPrice <= 0 {
		return nil, fmt.Errorf("非法的下单参数: qty=%v price=%v", qty, marketPrice)
	}

	symbol := params.TradingSymbol()

	amount, inContracts, err := e.orderAmount(gw, params, symbol, qty, marketPrice)
	if err != nil {
		return nil, err
	}

	ack, err := gw.CreateOrder(ctx, exchange.OrderRequest{
		Symbol: symbol,
		Type:   "market",
		Side:   side,
		Amount: amount,
		Params: e.tradeParams(params),
	})
	if err != nil {
		return nil, fmt.Errorf("市价单失败: %w", err)
	}

	e.logger.Info("市价单已提交",
		zap.String("order_id", ack.ID),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("amount", amount),
		zap.Bool("in_contracts", inContracts))

	e.recordFill(side, marketPrice)

	return &Result{
		OrderID:   ack.ID,
		Side:      side,
		Amount:    amount,
		Contracts: inContracts,
	}, nil
}

// orderAmount 把币数量换算成交易所接受的委托数量。
// 合约按张数向下取整，现货按交易所精度截断。
func (e *Executor) orderAmount(gw exchange.Gateway, params exchange.TradingParams, symbol string, qty, price float64) (float64, bool, error) {
	if params.Mode != exchange.ModeSwap {
		amount, err := gw.AmountToPrecision(symbol, qty)
		if err != nil {
			return 0, false, err
		}
		if amount <= 0 {
			return 0, false, fmt.Errorf("数量 %v 低于交易所最小精度", qty)
		}
		return amount, false, nil
	}

	size, err := gw.ContractSize(symbol)
	if err != nil {
		return 0, false, err
	}
	if size <= 0 {
		size = 1
	}

	contracts := math.Floor(qty * price / size)
	if contracts <= 0 {
		return 0, false, fmt.Errorf("数量 %v 折算不足一张合约(面值%v)，放弃下单", qty, size)
	}
	return contracts, true, nil
}

// tradeParams 返回与当前模式匹配的OKX下单参数。
func (e *Executor) tradeParams(params exchange.TradingParams) map[string]interface{} {
	if params.Mode == exchange.ModeSwap {
		return map[string]interface{}{
			"tdMode":  "cross",
			"posSide": "net",
		}
	}
	return map[string]interface{}{
		"tdMode": "cash",
	}
}

// recordFill 在委托提交成功后更新账户的持仓生命周期。
func (e *Executor) recordFill(side string, price float64) {
	now := time.Now()
	if side == SideBuy {
		e.mgr.RecordEntry(price, now)
		return
	}
	e.mgr.RecordExit(now)
}
