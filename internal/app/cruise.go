package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ai-cruise/internal/advisory"
	"ai-cruise/internal/bus"
	"ai-cruise/internal/exchange"
	"ai-cruise/internal/indicator"
	"ai-cruise/internal/journal"
)

// eligibilityRetry 为决策条件未满足时的短等待，
// 避免在冷却期或行情未就绪时空等一个完整决策周期。
const eligibilityRetry = 30 * time.Second

// cruiseLoop 是低频巡航: 按 advisory_interval 做一轮完整决策。
// 顾问调用期间不持有任何锁，行情与账户读写不受其耗时影响。
func (a *App) cruiseLoop(ctx context.Context) error {
	interval := a.cfg.Scheduler.AdvisoryInterval

	wait := interval
	for {
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
		wait = interval

		if !a.mgr.IsSafeToRead() {
			continue
		}

		// 条件不满足时不拉K线也不调用顾问，短暂等待后重查
		if ok, reason := decisionEligible(a.mgr.Snapshot(), a.currentPrice(), time.Now(), a.cfg.Trading.CoolingOff); !ok {
			a.logger.Info("决策条件未满足，本轮跳过", zap.String("reason", reason))
			wait = eligibilityRetry
			continue
		}

		if err := a.decideOnce(ctx); err != nil {
			a.logger.Warn("本轮决策未完成", zap.Error(err))
		}
	}
}

// decideOnce 执行一轮决策: 行情 → 指标 → 顾问 → 交易。
func (a *App) decideOnce(ctx context.Context) error {
	candles, err := a.mgr.Candles(ctx, a.cfg.Trading.Timeframe, a.cfg.Trading.KlineLimit)
	if err != nil {
		a.journal.RecordError(ctx, "拉取K线失败", err, nil)
		return err
	}

	ind, err := indicator.Compute(exchange.Closes(candles))
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			a.logger.Info("K线不足，本轮跳过", zap.Int("count", len(candles)))
			return nil
		}
		return err
	}
	price := ind.Close

	snap, err := a.mgr.SyncAccount(ctx)
	if err != nil {
		a.journal.RecordError(ctx, "决策前同步账户失败", err, nil)
		return err
	}

	total := snap.TotalAsset(price)
	a.mgr.SetInitialCapital(total)
	snap = a.mgr.Snapshot()

	_, _, drawdown := a.riskCtl.CheckRisk(total, snap.InitialCapital)
	params := a.mgr.Params()

	data := advisory.PromptData{
		Symbol:         params.Symbol,
		Mode:           string(params.Mode),
		Leverage:       params.Leverage,
		Price:          price,
		Balance:        snap.Balance,
		Position:       snap.Position,
		PositionValue:  snap.Position * price,
		TotalAsset:     total,
		InitialCapital: snap.InitialCapital,
		EntryPrice:     snap.EntryPrice,
		Drawdown:       drawdown,
		MA5:            ind.MA5,
		MA20:           ind.MA20,
		MA50:           ind.MA50,
		RSI:            ind.RSI,
		DIF:            ind.DIF,
		DEA:            ind.DEA,
		MACD:           ind.MACD,
		Volatility:     ind.Volatility,
		TrendScore:     ind.TrendScore,
	}
	if snap.EntryPrice > 0 {
		data.PnLPercent = (price - snap.EntryPrice) / snap.EntryPrice * 100
	}
	if snap.PositionOpenTime != nil {
		data.HoldingHours = time.Since(*snap.PositionOpenTime).Hours()
	}

	// 顾问调用可能耗时数十秒，期间两条巡航互不阻塞
	advice, err := a.advisor.Ask(ctx, data)
	if err != nil {
		a.journal.RecordError(ctx, "顾问决策失败", err, nil)
		return err
	}

	executed, note := a.applyAdvice(ctx, advice, ind, price)

	a.bus.Publish(bus.TypeAdvice, bus.AdviceUpdate{
		Action:     advice.Action,
		Position:   advice.Position,
		Reason:     advice.Reason,
		Confidence: advice.Confidence,
		Executed:   executed,
		Note:       note,
	})
	a.journal.RecordAdvice(ctx, journal.AdvicePayload{
		Action:     advice.Action,
		Position:   advice.Position,
		Reason:     advice.Reason,
		Confidence: advice.Confidence,
		TrendScore: ind.TrendScore,
		Executed:   executed,
		Note:       note,
	})

	return nil
}
