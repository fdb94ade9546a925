package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ai-cruise/internal/advisory"
	"ai-cruise/internal/bus"
	"ai-cruise/internal/exchange"
	"ai-cruise/internal/execution"
	"ai-cruise/internal/indicator"
	"ai-cruise/internal/journal"
)

const (
	// maxHoldDuration 到点强制离场，不给顾问否决权
	maxHoldDuration = 12 * time.Hour
	// weakTrendScore 配合MACD走弱触发趋势止损
	weakTrendScore = 25
	// minQuoteBalance 低于该余额(USDT)不再开新仓
	minQuoteBalance = 10.0
	// dustPositionValue 持仓价值(USDT)超过该值即视为已持仓
	dustPositionValue = 10.0

	minBuyRatio = 0.20
	maxBuyRatio = 0.95
)

// shouldSell 汇总全部卖出条件。持仓时任一成立即离场:
// 顾问建议卖出、持仓超时、趋势评分与MACD同时走弱。
func shouldSell(advice *advisory.Advice, snap exchange.AccountSnapshot, ind *indicator.Snapshot, now time.Time) (bool, string) {
	if !snap.Holding() {
		return false, ""
	}

	if advice.Action == advisory.ActionSell {
		return true, "顾问建议卖出: " + advice.Reason
	}

	if snap.PositionOpenTime != nil {
		held := now.Sub(*snap.PositionOpenTime)
		if held >= maxHoldDuration {
			return true, fmt.Sprintf("持仓已达 %.1f 小时，超过 %v 上限，强制离场", held.Hours(), maxHoldDuration)
		}
	}

	if ind.TrendScore < weakTrendScore && ind.MACD < 0 {
		return true, fmt.Sprintf("趋势走弱(评分%d，MACD %.4f)，止损离场", ind.TrendScore, ind.MACD)
	}

	return false, ""
}

// buyBlock 返回买入被跳过的原因，空串表示可以买入。
func buyBlock(snap exchange.AccountSnapshot, price float64, now time.Time, coolingOff time.Duration) string {
	if snap.Position*price > dustPositionValue {
		return "已持仓，跳过买入"
	}
	if snap.Balance <= minQuoteBalance {
		return fmt.Sprintf("可用余额 %.2f USDT 不足，跳过买入", snap.Balance)
	}
	if coolingOff > 0 && !snap.LastTradeTime.IsZero() {
		if since := now.Sub(snap.LastTradeTime); since < coolingOff {
			return fmt.Sprintf("冷却期内(距上次卖出 %v)，跳过买入", since.Round(time.Minute))
		}
	}
	return ""
}

// decisionEligible 判断是否具备发起一轮决策的条件:
// 已拿到有效行情、不在冷却期内、总资产高于最小门槛。
// 不满足时返回原因，巡航循环据此短暂等待而不是空跑一轮。
func decisionEligible(snap exchange.AccountSnapshot, price float64, now time.Time, coolingOff time.Duration) (bool, string) {
	if price <= 0 {
		return false, "尚未获取到行情价格"
	}
	if coolingOff > 0 && !snap.LastTradeTime.IsZero() {
		if since := now.Sub(snap.LastTradeTime); since < coolingOff {
			return false, fmt.Sprintf("冷却期内(距上次卖出 %v)", since.Round(time.Minute))
		}
	}
	if total := snap.TotalAsset(price); total <= minQuoteBalance {
		return false, fmt.Sprintf("总资产 %.2f USDT 低于最小门槛", total)
	}
	return true, ""
}

// adviceRatio 把顾问的百分制仓位建议折算为可执行的资金比例。
func adviceRatio(position float64) float64 {
	return clampRatio(position / 100)
}

// clampRatio 把仓位比例约束到可执行区间。
func clampRatio(ratio float64) float64 {
	if ratio < minBuyRatio {
		return minBuyRatio
	}
	if ratio > maxBuyRatio {
		return maxBuyRatio
	}
	return ratio
}

// buyQty 按可用余额与仓位比例折算买入数量，合约模式计入杠杆购买力。
func buyQty(balance, ratio, price float64, params exchange.TradingParams) float64 {
	if price <= 0 {
		return 0
	}
	spend := balance * ratio
	if params.Mode == exchange.ModeSwap && params.Leverage > 1 {
		spend *= float64(params.Leverage)
	}
	return spend / price
}

// applyAdvice 把顾问建议落地为真实委托。
// 返回是否实际成交与一条处置说明。
func (a *App) applyAdvice(ctx context.Context, advice *advisory.Advice, ind *indicator.Snapshot, price float64) (bool, string) {
	if !a.tradeMu.TryLock() {
		return false, "上一笔交易仍在处理，本轮跳过"
	}
	defer a.tradeMu.Unlock()

	// 建议生成期间行情可能已变化，下单前用最新快照复核
	snap, err := a.mgr.SyncAccount(ctx)
	if err != nil {
		a.logger.Warn("下单前同步账户失败", zap.Error(err))
		return false, "同步账户失败，放弃执行"
	}
	total := snap.TotalAsset(price)
	now := time.Now()

	if sell, reason := shouldSell(advice, snap, ind, now); sell {
		return a.executeSell(ctx, snap, price, reason)
	}

	if advice.Action != advisory.ActionBuy {
		return false, "维持观望"
	}

	if block := buyBlock(snap, price, now, a.cfg.Trading.CoolingOff); block != "" {
		a.logger.Info("买入被跳过", zap.String("reason", block))
		return false, block
	}

	allowed, msg := a.riskCtl.CheckTradePermission(total, snap.InitialCapital, "buy")
	if !allowed {
		a.logger.Warn("买入被风控拦截", zap.String("reason", msg))
		_, _, drawdown := a.riskCtl.CheckRisk(total, snap.InitialCapital)
		a.journal.RecordRiskBlock(ctx, journal.RiskBlockPayload{
			Action:   "buy",
			Message:  msg,
			Drawdown: drawdown,
		})
		a.bus.Publish(bus.TypeRisk, bus.RiskUpdate{Message: msg, Drawdown: drawdown, Alert: true})
		return false, msg
	}

	params := a.mgr.Params()
	ratio := adviceRatio(advice.Position)
	qty := buyQty(snap.Balance, ratio, price, params)
	stopLoss := a.riskCtl.StopLoss(price)

	result, err := a.exec.PlaceLimitWithStop(ctx, execution.SideBuy, qty, price, stopLoss)
	if err != nil {
		a.logger.Error("买入失败", zap.Error(err))
		a.journal.RecordError(ctx, "买入失败", err, map[string]interface{}{"qty": qty, "price": price})
		return false, fmt.Sprintf("买入失败: %v", err)
	}

	a.journal.RecordTrade(ctx, journal.TradePayload{
		OrderID:  result.OrderID,
		Symbol:   params.TradingSymbol(),
		Side:     execution.SideBuy,
		Price:    result.Price,
		Amount:   result.Amount,
		StopLoss: stopLoss,
		Reason:   advice.Reason,
	})
	note := fmt.Sprintf("买入已提交: 仓位比例 %.0f%%，止损 %.4f", ratio*100, stopLoss)
	a.publishLog(note)
	return true, note
}

func (a *App) executeSell(ctx context.Context, snap exchange.AccountSnapshot, price float64, reason string) (bool, string) {
	result, err := a.exec.PlaceLimitWithStop(ctx, execution.SideSell, snap.Position, price, 0)
	if err != nil {
		a.logger.Error("卖出失败", zap.Error(err))
		a.journal.RecordError(ctx, "卖出失败", err, map[string]interface{}{"qty": snap.Position, "price": price})
		return false, fmt.Sprintf("卖出失败: %v", err)
	}

	params := a.mgr.Params()
	a.journal.RecordTrade(ctx, journal.TradePayload{
		OrderID: result.OrderID,
		Symbol:  params.TradingSymbol(),
		Side:    execution.SideSell,
		Price:   result.Price,
		Amount:  result.Amount,
		Reason:  reason,
	})
	a.publishLog("卖出已提交: " + reason)
	return true, reason
}
