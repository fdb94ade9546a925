package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ai-cruise/internal/state"
)

// SaveParamsFunc 在热切换成功后把新参数回写到配置文件。
type SaveParamsFunc func(symbol, mode string, leverage int) error

// Manager 管理唯一一条交易所会话及其账户快照。
//
// 锁的约定:
//   - mu 保护 gw/params/acct，持有期间禁止任何网络与磁盘IO
//     （热切换是唯一例外：新会话在锁内建立，失败时原会话原样保留）；
//   - swapMu 只保护 swapping 标志，保证同一时刻只有一次热切换，
//     它与 mu 永不嵌套。
type Manager struct {
	creds      Credentials
	dial       Dialer
	store      *state.Store
	saveParams SaveParamsFunc
	logger     *zap.Logger

	mu     sync.Mutex
	gw     Gateway
	params TradingParams
	acct   AccountSnapshot

	swapMu   sync.Mutex
	swapping bool
}

// NewManager 创建连接管理器，此时尚未建立会话。
func NewManager(creds Credentials, params TradingParams, store *state.Store, dial Dialer, saveParams SaveParamsFunc, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dial == nil {
		dial = NewOKXGateway
	}
	return &Manager{
		creds:      creds,
		dial:       dial,
		store:      store,
		saveParams: saveParams,
		logger:     logger,
		params:     params,
	}
}

// Open 建立初始会话并恢复本地账户状态，失败返回 ErrConnection。
func (m *Manager) Open(ctx context.Context) error {
	if m.creds.APIKey == "" || m.creds.APISecret == "" {
		return fmt.Errorf("%w: 缺少API凭证", ErrConnection)
	}

	gw, err := m.connect(ctx, m.params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	m.mu.Lock()
	m.gw = gw
	m.mu.Unlock()

	m.logger.Info("交易所连接成功",
		zap.String("symbol", m.params.Symbol),
		zap.String("mode", string(m.params.Mode)),
		zap.Int("leverage", m.params.Leverage))

	m.calibrate(ctx)
	return nil
}

// connect 建立并初始化一条新会话，不触碰 Manager 的共享状态。
func (m *Manager) connect(ctx context.Context, params TradingParams) (Gateway, error) {
	gw, err := m.dial(m.creds, params)
	if err != nil {
		return nil, fmt.Errorf("创建交易所会话失败: %w", err)
	}

	if err := gw.LoadMarkets(ctx); err != nil {
		return nil, fmt.Errorf("加载市场数据失败: %w", err)
	}

	// 合约模式下设置杠杆，失败不致命：交易所可能保留了上次的设置
	if params.Mode == ModeSwap && params.Leverage > 1 {
		symbol := params.TradingSymbol()
		err := gw.SetLeverage(ctx, params.Leverage, symbol, map[string]interface{}{
			"mgnMode": "cross",
		})
		if err != nil {
			m.logger.Warn("设置杠杆失败，沿用交易所当前杠杆",
				zap.String("symbol", symbol),
				zap.Int("leverage", params.Leverage),
				zap.Error(err))
		}
	}

	return gw, nil
}

// HotSwap 原子地切换到一组新交易参数。
// 返回是否成功与一条面向展示层的结果说明；失败时旧会话与旧参数原样保留。
func (m *Manager) HotSwap(ctx context.Context, newParams TradingParams) (bool, string) {
	m.swapMu.Lock()
	if m.swapping {
		m.swapMu.Unlock()
		return false, "切换进行中，请稍候"
	}
	m.swapping = true
	m.swapMu.Unlock()

	defer func() {
		m.swapMu.Lock()
		m.swapping = false
		m.swapMu.Unlock()
	}()

	m.logger.Info("开始热切换",
		zap.String("symbol", newParams.Symbol),
		zap.String("mode", string(newParams.Mode)),
		zap.Int("leverage", newParams.Leverage))

	m.mu.Lock()

	gw, err := m.connect(ctx, newParams)
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("热切换建立新会话失败", zap.Error(err))
		return false, fmt.Sprintf("切换失败: %v", err)
	}

	// 用新会话做一次真实请求验证可用性
	if _, err := gw.FetchBalance(ctx); err != nil {
		m.mu.Unlock()
		m.logger.Error("热切换验证新会话失败", zap.Error(err))
		return false, fmt.Sprintf("切换失败: 新连接验证未通过: %v", err)
	}

	m.gw = gw
	m.params = newParams

	// 入场价与开仓时间属于旧交易对，本金与峰值是账户级指标，保留
	m.acct.EntryPrice = 0
	m.acct.PositionOpenTime = nil
	m.acct.Balance = 0
	m.acct.Position = 0
	snap := m.acct
	m.mu.Unlock()

	m.persist(snap)

	if m.saveParams != nil {
		if err := m.saveParams(newParams.Symbol, string(newParams.Mode), newParams.Leverage); err != nil {
			m.logger.Warn("回写交易参数到配置失败", zap.Error(err))
		}
	}

	m.logger.Info("热切换完成", zap.String("symbol", newParams.Symbol))
	return true, fmt.Sprintf("切换成功: %s (%s)", newParams.Symbol, newParams.Mode)
}

// IsSafeToRead 返回当前是否没有热切换在进行，
// 价格巡航在读取行情前先做该检查以避开切换窗口。
func (m *Manager) IsSafeToRead() bool {
	m.swapMu.Lock()
	defer m.swapMu.Unlock()
	return !m.swapping
}

// Params 返回当前交易参数快照。
func (m *Manager) Params() TradingParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// Session 返回当前会话与配套参数，两者保证来自同一次切换。
func (m *Manager) Session() (Gateway, TradingParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gw, m.params
}

// Snapshot 返回账户快照副本。
func (m *Manager) Snapshot() AccountSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acct
}

// LastPrice 获取当前交易对的最新成交价。
func (m *Manager) LastPrice(ctx context.Context) (float64, error) {
	gw, params := m.Session()
	if gw == nil {
		return 0, ErrConnection
	}

	ticker, err := gw.FetchTicker(ctx, params.TradingSymbol())
	if err != nil {
		return 0, err
	}
	if ticker.Last <= 0 {
		return 0, fmt.Errorf("%w: 行情价格无效", ErrNetwork)
	}
	return ticker.Last, nil
}

// Candles 拉取当前交易对的K线序列。
func (m *Manager) Candles(ctx context.Context, timeframe string, limit int) ([]Candle, error) {
	gw, params := m.Session()
	if gw == nil {
		return nil, ErrConnection
	}
	return gw.FetchOHLCV(ctx, params.TradingSymbol(), timeframe, limit)
}

// SyncAccount 从交易所拉取余额与持仓并刷新账户快照。
// 网络请求全部在拿账户锁之前完成。
func (m *Manager) SyncAccount(ctx context.Context) (AccountSnapshot, error) {
	gw, params := m.Session()
	if gw == nil {
		return AccountSnapshot{}, ErrConnection
	}

	balance, err := gw.FetchBalance(ctx)
	if err != nil {
		return AccountSnapshot{}, err
	}
	quoteFree := balance.Free[params.QuoteCoin()]

	var position float64
	if params.Mode == ModeSwap {
		positions, err := gw.FetchPositions(ctx, params.TradingSymbol())
		if err != nil {
			return AccountSnapshot{}, err
		}
		for _, p := range positions {
			position += p.Qty()
		}
	} else {
		position = balance.Total[params.BaseCoin()]
	}

	m.mu.Lock()
	m.acct.Balance = quoteFree
	m.acct.Position = position
	if position <= DustEpsilon {
		// 仓位已平，清掉与持仓绑定的字段
		m.acct.EntryPrice = 0
		m.acct.PositionOpenTime = nil
	}
	snap := m.acct
	m.mu.Unlock()

	return snap, nil
}

// SetInitialCapital 设置初始本金，只在其仍为零时生效。
func (m *Manager) SetInitialCapital(total float64) {
	if total <= 0 {
		return
	}

	m.mu.Lock()
	if m.acct.InitialCapital > 0 {
		m.mu.Unlock()
		return
	}
	m.acct.InitialCapital = total
	if m.acct.PeakBalance < total {
		m.acct.PeakBalance = total
	}
	snap := m.acct
	m.mu.Unlock()

	m.logger.Info("初始本金已锁定", zap.Float64("initial_capital", total))
	m.persist(snap)
}

// UpdatePeakBalance 在空仓状态下单调抬升峰值资产。
// 持仓期间资产随价格波动，不作为峰值依据。
func (m *Manager) UpdatePeakBalance(total, position float64) {
	if position > DustEpsilon {
		return
	}

	m.mu.Lock()
	if total <= m.acct.PeakBalance {
		m.mu.Unlock()
		return
	}
	m.acct.PeakBalance = total
	snap := m.acct
	m.mu.Unlock()

	m.persist(snap)
}

// RecordEntry 在买入成交后记录入场价与开仓时间。
func (m *Manager) RecordEntry(price float64, at time.Time) {
	m.mu.Lock()
	m.acct.EntryPrice = price
	t := at
	m.acct.PositionOpenTime = &t
	snap := m.acct
	m.mu.Unlock()

	m.logger.Info("记录开仓", zap.Float64("entry_price", price), zap.Time("open_time", at))
	m.persist(snap)
}

// RecordExit 在卖出成交后清除持仓字段并记录冷却期起点。
func (m *Manager) RecordExit(at time.Time) {
	m.mu.Lock()
	m.acct.EntryPrice = 0
	m.acct.PositionOpenTime = nil
	m.acct.LastTradeTime = at
	snap := m.acct
	m.mu.Unlock()

	m.logger.Info("记录平仓", zap.Time("exit_time", at))
	m.persist(snap)
}

// ClearLocalState 清空内存中的账户状态并删除本地状态文件。
func (m *Manager) ClearLocalState() error {
	m.mu.Lock()
	m.acct = AccountSnapshot{}
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	return m.store.Clear()
}

// persist 在账户锁之外把快照落盘，失败只告警不中断交易。
func (m *Manager) persist(snap AccountSnapshot) {
	if m.store == nil {
		return
	}
	err := m.store.Save(state.Snapshot{
		EntryPrice:       snap.EntryPrice,
		PeakBalance:      snap.PeakBalance,
		InitialCapital:   snap.InitialCapital,
		PositionOpenTime: snap.PositionOpenTime,
	})
	if err != nil {
		m.logger.Warn("保存本地状态失败", zap.Error(err))
	}
}
