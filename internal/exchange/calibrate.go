package exchange

import (
	"context"

	"go.uber.org/zap"
)

// calibrate 在启动时用本地状态文件与交易所实况对齐账户快照。
//
// 对齐规则:
//   - 实际空仓时丢弃本地残留的入场价与开仓时间；
//   - 实际持仓但本地没有入场价时，从最近一笔成交回推；
//   - 任何一步失败都只降级告警，账户会在巡航循环中继续被同步。
func (m *Manager) calibrate(ctx context.Context) {
	var persisted AccountSnapshot
	if m.store != nil {
		saved := m.store.Load()
		persisted.EntryPrice = saved.EntryPrice
		persisted.PeakBalance = saved.PeakBalance
		persisted.InitialCapital = saved.InitialCapital
		persisted.PositionOpenTime = saved.PositionOpenTime
	}

	m.mu.Lock()
	m.acct.EntryPrice = persisted.EntryPrice
	m.acct.PeakBalance = persisted.PeakBalance
	m.acct.InitialCapital = persisted.InitialCapital
	m.acct.PositionOpenTime = persisted.PositionOpenTime
	m.mu.Unlock()

	snap, err := m.SyncAccount(ctx)
	if err != nil {
		m.logger.Warn("启动校准拉取账户失败，沿用本地状态", zap.Error(err))
		return
	}

	if snap.Position <= DustEpsilon {
		if persisted.EntryPrice > 0 || persisted.PositionOpenTime != nil {
			m.logger.Info("实际空仓，丢弃本地残留的持仓状态",
				zap.Float64("stale_entry_price", persisted.EntryPrice))
			m.mu.Lock()
			m.acct.EntryPrice = 0
			m.acct.PositionOpenTime = nil
			clean := m.acct
			m.mu.Unlock()
			m.persist(clean)
		}
		return
	}

	if snap.EntryPrice > 0 {
		return
	}

	// 持仓但本地没有入场价，尝试从最近一笔成交恢复
	gw, params := m.Session()
	fills, err := gw.FetchMyTrades(ctx, params.TradingSymbol(), 1)
	if err != nil || len(fills) == 0 {
		m.logger.Warn("回推入场价失败，等待下一次买入时重建", zap.Error(err))
		return
	}

	last := fills[len(fills)-1]
	m.mu.Lock()
	m.acct.EntryPrice = last.Price
	t := last.Timestamp
	m.acct.PositionOpenTime = &t
	recovered := m.acct
	m.mu.Unlock()

	m.logger.Info("从历史成交恢复入场状态",
		zap.Float64("entry_price", last.Price),
		zap.Time("open_time", last.Timestamp))
	m.persist(recovered)
}
