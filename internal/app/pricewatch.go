package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ai-cruise/internal/bus"
	"ai-cruise/internal/exchange"
)

// priceWatchLoop 是高频巡航: 按 price_interval 拉取最新价推给展示层，
// 并按 sync_interval 顺带同步一次账户。热切换窗口内只等待不读取。
func (a *App) priceWatchLoop(ctx context.Context) error {
	interval := a.cfg.Scheduler.PriceInterval
	syncInterval := a.cfg.Scheduler.SyncInterval

	var lastPrice float64
	var lastSync time.Time
	connected := true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !a.mgr.IsSafeToRead() {
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}

		price, err := a.mgr.LastPrice(ctx)
		if err != nil {
			if exchange.IsNetworkError(err) {
				if connected {
					connected = false
					a.logger.Warn("行情中断，连接降级", zap.Error(err))
					a.bus.Publish(bus.TypeStatus, bus.StatusUpdate{Connected: false, Detail: err.Error()})
				}
			} else {
				a.logger.Warn("获取行情失败", zap.Error(err))
			}
			if !sleep(ctx, interval) {
				return ctx.Err()
			}
			continue
		}

		if !connected {
			connected = true
			a.logger.Info("行情恢复")
			a.bus.Publish(bus.TypeStatus, bus.StatusUpdate{Connected: true})
		}

		hint := "flat"
		switch {
		case lastPrice > 0 && price > lastPrice:
			hint = "up"
		case lastPrice > 0 && price < lastPrice:
			hint = "down"
		}
		lastPrice = price
		a.setCurrentPrice(price)

		a.bus.Publish(bus.TypePrice, bus.PriceUpdate{
			Symbol:    a.mgr.Params().Symbol,
			Price:     price,
			ColorHint: hint,
		})

		// 交易所重新拉取只按 sync_interval 节流
		if time.Since(lastSync) >= syncInterval {
			a.resyncAccount(ctx, price)
			lastSync = time.Now()
		}

		// 账户与风控读数每个行情节拍都基于缓存快照推送
		a.publishAccount(price)

		if !sleep(ctx, interval) {
			return ctx.Err()
		}
	}
}

// resyncAccount 从交易所刷新账户快照并维护本金与峰值。
func (a *App) resyncAccount(ctx context.Context, price float64) {
	snap, err := a.mgr.SyncAccount(ctx)
	if err != nil {
		a.logger.Warn("同步账户失败", zap.Error(err))
		return
	}

	total := snap.TotalAsset(price)
	a.mgr.SetInitialCapital(total)
	a.mgr.UpdatePeakBalance(total, snap.Position)

	if ok, msg, drawdown := a.riskCtl.CheckRisk(total, a.mgr.Snapshot().InitialCapital); !ok {
		a.logger.Warn("风控告警", zap.String("message", msg), zap.Float64("drawdown", drawdown))
	}
}

// publishAccount 基于缓存快照广播账户与风控状态，不触发任何网络请求。
func (a *App) publishAccount(price float64) {
	snap := a.mgr.Snapshot()

	a.bus.Publish(bus.TypeAccount, buildAccountUpdate(snap, price))

	total := snap.TotalAsset(price)
	ok, msg, drawdown := a.riskCtl.CheckRisk(total, snap.InitialCapital)
	a.bus.Publish(bus.TypeRisk, bus.RiskUpdate{Message: msg, Drawdown: drawdown, Alert: !ok})
}

// buildAccountUpdate 按给定现价折算账户推送内容。
func buildAccountUpdate(snap exchange.AccountSnapshot, price float64) bus.AccountUpdate {
	total := snap.TotalAsset(price)

	var pnlPercent float64
	if snap.InitialCapital > 0 {
		pnlPercent = (total - snap.InitialCapital) / snap.InitialCapital * 100
	}

	return bus.AccountUpdate{
		Balance:        snap.Balance,
		Position:       snap.Position,
		TotalAsset:     total,
		InitialCapital: snap.InitialCapital,
		PnLPercent:     pnlPercent,
	}
}
