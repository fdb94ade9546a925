package exchange

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeGateway struct {
	balance    Balance
	balanceErr error
	positions  []Position
	ticker     Ticker
	candles    []Candle
	fills      []Fill
	orders     []OrderRequest
	orderAck   OrderAck
	orderErr   error
	leverage   int
	size       float64
}

func (f *fakeGateway) LoadMarkets(ctx context.Context) error { return nil }

func (f *fakeGateway) FetchBalance(ctx context.Context) (Balance, error) {
	if f.balanceErr != nil {
		return Balance{}, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeGateway) FetchPositions(ctx context.Context, symbol string) ([]Position, error) {
	return f.positions, nil
}

func (f *fakeGateway) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	return f.ticker, nil
}

func (f *fakeGateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	return f.candles, nil
}

func (f *fakeGateway) FetchMyTrades(ctx context.Context, symbol string, limit int) ([]Fill, error) {
	return f.fills, nil
}

func (f *fakeGateway) CreateOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if f.orderErr != nil {
		return OrderAck{}, f.orderErr
	}
	f.orders = append(f.orders, req)
	return f.orderAck, nil
}

func (f *fakeGateway) SetLeverage(ctx context.Context, leverage int, symbol string, params map[string]interface{}) error {
	f.leverage = leverage
	return nil
}

func (f *fakeGateway) PriceToPrecision(symbol string, price float64) (float64, error) {
	return price, nil
}

func (f *fakeGateway) AmountToPrecision(symbol string, amount float64) (float64, error) {
	return amount, nil
}

func (f *fakeGateway) ContractSize(symbol string) (float64, error) {
	if f.size > 0 {
		return f.size, nil
	}
	return 1, nil
}

func staticDialer(gw Gateway) Dialer {
	return func(cfg Credentials, params TradingParams) (Gateway, error) {
		return gw, nil
	}
}

func newTestManager(t *testing.T, gw Gateway) *Manager {
	t.Helper()
	creds := Credentials{APIKey: "key", APISecret: "secret"}
	params := TradingParams{Symbol: "BTC/USDT", Mode: ModeSpot, Leverage: 1}
	return NewManager(creds, params, nil, staticDialer(gw), nil, nil)
}

func TestTradingSymbolMapping(t *testing.T) {
	cases := []struct {
		symbol string
		mode   Mode
		want   string
	}{
		{"BTC/USDT", ModeSwap, "BTC/USDT:USDT"},
		{"BTC/USDT:USDT", ModeSwap, "BTC/USDT:USDT"},
		{"BTC/USDT:USDT", ModeSpot, "BTC/USDT"},
		{"BTC/USDT", ModeSpot, "BTC/USDT"},
	}
	for _, tc := range cases {
		p := TradingParams{Symbol: tc.symbol, Mode: tc.mode}
		if got := p.TradingSymbol(); got != tc.want {
			t.Errorf("TradingSymbol(%q, %s) = %q, want %q", tc.symbol, tc.mode, got, tc.want)
		}
	}
}

func TestOpenRequiresCredentials(t *testing.T) {
	m := NewManager(Credentials{}, TradingParams{Symbol: "BTC/USDT", Mode: ModeSpot}, nil, staticDialer(&fakeGateway{}), nil, nil)
	err := m.Open(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("缺少凭证时应返回 ErrConnection, got %v", err)
	}
}

func TestHotSwapSuccess(t *testing.T) {
	old := &fakeGateway{balance: Balance{Free: map[string]float64{"USDT": 1000}, Total: map[string]float64{}}}
	next := &fakeGateway{balance: Balance{Free: map[string]float64{"USDT": 1000}, Total: map[string]float64{}}}

	m := newTestManager(t, old)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	m.SetInitialCapital(1000)
	m.RecordEntry(60000, time.Now())

	var savedSymbol, savedMode string
	var savedLev int
	m.dial = staticDialer(next)
	m.saveParams = func(symbol, mode string, leverage int) error {
		savedSymbol, savedMode, savedLev = symbol, mode, leverage
		return nil
	}

	ok, msg := m.HotSwap(context.Background(), TradingParams{Symbol: "ETH/USDT", Mode: ModeSwap, Leverage: 3})
	if !ok {
		t.Fatalf("热切换应成功: %s", msg)
	}

	gw, params := m.Session()
	if gw != Gateway(next) {
		t.Errorf("会话应已替换为新连接")
	}
	if params.Symbol != "ETH/USDT" || params.Mode != ModeSwap || params.Leverage != 3 {
		t.Errorf("参数未整体替换: %+v", params)
	}
	if savedSymbol != "ETH/USDT" || savedMode != "swap" || savedLev != 3 {
		t.Errorf("成功后应回写配置: %s %s %d", savedSymbol, savedMode, savedLev)
	}

	snap := m.Snapshot()
	if snap.EntryPrice != 0 || snap.PositionOpenTime != nil {
		t.Errorf("切换后应清除旧交易对的持仓字段: %+v", snap)
	}
	if snap.InitialCapital != 1000 || snap.PeakBalance != 1000 {
		t.Errorf("切换后应保留账户级的本金与峰值: %+v", snap)
	}
}

func TestHotSwapDialFailureKeepsOldSession(t *testing.T) {
	old := &fakeGateway{balance: Balance{Free: map[string]float64{"USDT": 500}, Total: map[string]float64{}}}
	m := newTestManager(t, old)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	m.dial = func(cfg Credentials, params TradingParams) (Gateway, error) {
		return nil, errors.New("dial refused")
	}

	ok, msg := m.HotSwap(context.Background(), TradingParams{Symbol: "ETH/USDT", Mode: ModeSpot, Leverage: 1})
	if ok {
		t.Fatalf("拨号失败时热切换应失败")
	}
	if msg == "" {
		t.Errorf("失败时应返回说明")
	}

	gw, params := m.Session()
	if gw != Gateway(old) || params.Symbol != "BTC/USDT" {
		t.Errorf("失败后旧会话与旧参数应原样保留: %+v", params)
	}
	if !m.IsSafeToRead() {
		t.Errorf("失败后切换标志应已复位")
	}
}

func TestHotSwapVerifyFailureRollsBack(t *testing.T) {
	old := &fakeGateway{balance: Balance{Free: map[string]float64{"USDT": 500}, Total: map[string]float64{}}}
	broken := &fakeGateway{balanceErr: errors.New("auth failed")}

	m := newTestManager(t, old)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.dial = staticDialer(broken)

	ok, _ := m.HotSwap(context.Background(), TradingParams{Symbol: "ETH/USDT", Mode: ModeSpot, Leverage: 1})
	if ok {
		t.Fatalf("新连接验证失败时热切换应失败")
	}
	if gw, _ := m.Session(); gw != Gateway(old) {
		t.Errorf("验证失败后应继续使用旧会话")
	}

	// 失败后允许立即发起下一次切换
	m.dial = staticDialer(&fakeGateway{balance: Balance{Free: map[string]float64{}, Total: map[string]float64{}}})
	if ok, msg := m.HotSwap(context.Background(), TradingParams{Symbol: "SOL/USDT", Mode: ModeSpot, Leverage: 1}); !ok {
		t.Errorf("失败后的再次切换应可进行: %s", msg)
	}
}

func TestHotSwapSingleFlight(t *testing.T) {
	gw := &fakeGateway{balance: Balance{Free: map[string]float64{}, Total: map[string]float64{}}}
	m := newTestManager(t, gw)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	release := make(chan struct{})
	m.dial = func(cfg Credentials, params TradingParams) (Gateway, error) {
		<-release
		return gw, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.HotSwap(context.Background(), TradingParams{Symbol: "ETH/USDT", Mode: ModeSpot, Leverage: 1})
	}()

	deadline := time.After(2 * time.Second)
	for m.IsSafeToRead() {
		select {
		case <-deadline:
			t.Fatalf("切换开始后 IsSafeToRead 应返回 false")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ok, msg := m.HotSwap(context.Background(), TradingParams{Symbol: "SOL/USDT", Mode: ModeSpot, Leverage: 1})
	if ok || msg != "切换进行中，请稍候" {
		t.Errorf("并发切换应被拒绝: ok=%v msg=%q", ok, msg)
	}

	close(release)
	<-done

	if !m.IsSafeToRead() {
		t.Errorf("切换结束后 IsSafeToRead 应恢复 true")
	}
}

func TestSetInitialCapitalOnce(t *testing.T) {
	m := newTestManager(t, &fakeGateway{})

	m.SetInitialCapital(0)
	if got := m.Snapshot().InitialCapital; got != 0 {
		t.Errorf("非正值不应生效: %v", got)
	}

	m.SetInitialCapital(1000)
	m.SetInitialCapital(2000)

	snap := m.Snapshot()
	if snap.InitialCapital != 1000 {
		t.Errorf("初始本金只应设置一次: %v", snap.InitialCapital)
	}
	if snap.PeakBalance != 1000 {
		t.Errorf("首次设置本金时应初始化峰值: %v", snap.PeakBalance)
	}
}

func TestUpdatePeakBalanceFlatOnly(t *testing.T) {
	m := newTestManager(t, &fakeGateway{})
	m.SetInitialCapital(1000)

	// 持仓期间不更新峰值
	m.UpdatePeakBalance(5000, 0.5)
	if got := m.Snapshot().PeakBalance; got != 1000 {
		t.Errorf("持仓期间峰值不应变化: %v", got)
	}

	// 空仓时单调抬升
	m.UpdatePeakBalance(1200, 0)
	if got := m.Snapshot().PeakBalance; got != 1200 {
		t.Errorf("空仓时峰值应抬升: %v", got)
	}
	m.UpdatePeakBalance(900, 0)
	if got := m.Snapshot().PeakBalance; got != 1200 {
		t.Errorf("峰值只增不减: %v", got)
	}

	// 尘埃仓位视为空仓
	m.UpdatePeakBalance(1300, DustEpsilon/2)
	if got := m.Snapshot().PeakBalance; got != 1300 {
		t.Errorf("尘埃仓位应按空仓处理: %v", got)
	}
}

func TestSyncAccountSpotAndSwap(t *testing.T) {
	gw := &fakeGateway{
		balance: Balance{
			Free:  map[string]float64{"USDT": 800},
			Total: map[string]float64{"BTC": 0.25},
		},
		positions: []Position{{Symbol: "BTC/USDT:USDT", Contracts: 5, ContractSize: 0.01}},
	}
	m := newTestManager(t, gw)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap, err := m.SyncAccount(context.Background())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if snap.Balance != 800 || snap.Position != 0.25 {
		t.Errorf("现货同步错误: balance=%v position=%v", snap.Balance, snap.Position)
	}

	m.params.Mode = ModeSwap
	snap, err = m.SyncAccount(context.Background())
	if err != nil {
		t.Fatalf("SyncAccount(swap): %v", err)
	}
	if snap.Position != 0.05 {
		t.Errorf("合约持仓应为张数×面值: %v", snap.Position)
	}
}

func TestSyncAccountClearsEntryWhenFlat(t *testing.T) {
	gw := &fakeGateway{balance: Balance{Free: map[string]float64{"USDT": 1000}, Total: map[string]float64{}}}
	m := newTestManager(t, gw)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	m.RecordEntry(60000, time.Now())

	snap, err := m.SyncAccount(context.Background())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if snap.EntryPrice != 0 || snap.PositionOpenTime != nil {
		t.Errorf("空仓同步后应清除入场状态: %+v", snap)
	}
}

func TestRecordEntryExitLifecycle(t *testing.T) {
	m := newTestManager(t, &fakeGateway{})

	opened := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m.RecordEntry(60000, opened)

	snap := m.Snapshot()
	if snap.EntryPrice != 60000 || snap.PositionOpenTime == nil || !snap.PositionOpenTime.Equal(opened) {
		t.Fatalf("开仓记录错误: %+v", snap)
	}

	closed := opened.Add(2 * time.Hour)
	m.RecordExit(closed)

	snap = m.Snapshot()
	if snap.EntryPrice != 0 || snap.PositionOpenTime != nil {
		t.Errorf("平仓后应清除持仓字段: %+v", snap)
	}
	if !snap.LastTradeTime.Equal(closed) {
		t.Errorf("平仓后应记录冷却期起点: %v", snap.LastTradeTime)
	}
}
