package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ai-cruise/internal/advisory"
	"ai-cruise/internal/bus"
	"ai-cruise/internal/config"
	"ai-cruise/internal/exchange"
	"ai-cruise/internal/execution"
	"ai-cruise/internal/journal"
	"ai-cruise/internal/risk"
	"ai-cruise/internal/state"
	"ai-cruise/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger

	bus     *bus.Bus
	mgr     *exchange.Manager
	exec    *execution.Executor
	riskCtl *risk.Controller
	advisor *advisory.Client
	journal *journal.Service

	// tradeMu 保证同一时刻只有一条下单流程在进行
	tradeMu sync.Mutex

	// priceMu 保护价格巡航缓存的最新价，供决策巡航做前置检查
	priceMu   sync.Mutex
	lastPrice float64
}

// New 创建 App 实例并完成全部依赖装配。
// cfgPath 用于热切换成功后把新参数回写到配置文件。
func New(cfg *config.Config, cfgPath string, logger *zap.Logger, sqliteStore *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	journalSvc, err := journal.NewService(sqliteStore, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化流水服务失败: %w", err)
	}

	stateStore := state.NewStore(cfg.State.Path, logger)

	creds := exchange.Credentials{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		APIPass:    cfg.Exchange.APIPass,
		UseSandbox: cfg.Exchange.UseSandbox,
		Proxy:      cfg.Exchange.Proxy,
	}
	params := exchange.TradingParams{
		Symbol:   cfg.Trading.Symbol,
		Mode:     exchange.Mode(cfg.Trading.Mode),
		Leverage: cfg.Trading.Leverage,
	}
	saveParams := func(symbol, mode string, leverage int) error {
		return config.UpdateTradingParams(cfgPath, symbol, mode, leverage)
	}

	mgr := exchange.NewManager(creds, params, stateStore, nil, saveParams, logger)

	app := &App{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
		bus:     bus.New(),
		mgr:     mgr,
		exec:    execution.NewExecutor(mgr, cfg.Trading.SlippageTolerance, logger),
		riskCtl: risk.NewController(risk.Limits{
			MaxDrawdown:   cfg.Risk.MaxDrawdown,
			MaxSingleLoss: cfg.Risk.MaxSingleLoss,
		}),
		advisor: advisory.NewClient(cfg.Advisory, logger),
		journal: journalSvc,
	}
	return app, nil
}

// Run 建立交易所连接并启动两条巡航循环，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("symbol", a.cfg.Trading.Symbol),
		zap.String("mode", a.cfg.Trading.Mode),
		zap.Int("leverage", a.cfg.Trading.Leverage))

	if err := a.mgr.Open(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	a.bus.Publish(bus.TypeStatus, bus.StatusUpdate{Connected: true})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.priceWatchLoop(ctx) })
	g.Go(func() error { return a.cruiseLoop(ctx) })
	if a.cfg.Telemetry.Enabled {
		g.Go(func() error { return a.serveTelemetry(ctx) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}

// SwapTo 热切换到一组新交易参数并广播结果。
func (a *App) SwapTo(ctx context.Context, symbol, mode string, leverage int) (bool, string) {
	params := exchange.TradingParams{
		Symbol:   symbol,
		Mode:     exchange.Mode(mode),
		Leverage: leverage,
	}
	if params.Mode != exchange.ModeSpot && params.Mode != exchange.ModeSwap {
		return false, fmt.Sprintf("非法的交易模式: %q", mode)
	}
	if params.Leverage < 1 {
		params.Leverage = 1
	}

	ok, msg := a.mgr.HotSwap(ctx, params)

	a.journal.RecordSwap(ctx, journal.SwapPayload{
		Symbol:   symbol,
		Mode:     mode,
		Leverage: params.Leverage,
		Success:  ok,
		Message:  msg,
	})
	a.bus.Publish(bus.TypeReconnect, bus.ReconnectResult{Success: ok, Message: msg})

	return ok, msg
}

// PanicClose 无视策略立即市价平掉全部持仓。
func (a *App) PanicClose(ctx context.Context) (string, error) {
	a.tradeMu.Lock()
	defer a.tradeMu.Unlock()

	snap, err := a.mgr.SyncAccount(ctx)
	if err != nil {
		return "", fmt.Errorf("紧急平仓前同步账户失败: %w", err)
	}
	if !snap.Holding() {
		return "当前空仓，无需平仓", nil
	}

	price, err := a.mgr.LastPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("紧急平仓获取行情失败: %w", err)
	}

	result, err := a.exec.PlaceMarket(ctx, execution.SideSell, snap.Position, price)
	if err != nil {
		a.journal.RecordError(ctx, "紧急平仓失败", err, nil)
		return "", err
	}

	_, params := a.mgr.Session()
	a.journal.RecordTrade(ctx, journal.TradePayload{
		OrderID: result.OrderID,
		Symbol:  params.TradingSymbol(),
		Side:    execution.SideSell,
		Amount:  result.Amount,
		Reason:  "紧急平仓",
	})
	a.publishLog(fmt.Sprintf("紧急平仓已提交: %s 数量 %v", params.TradingSymbol(), result.Amount))

	return fmt.Sprintf("紧急平仓已提交，委托号 %s", result.OrderID), nil
}

func (a *App) setCurrentPrice(price float64) {
	a.priceMu.Lock()
	a.lastPrice = price
	a.priceMu.Unlock()
}

func (a *App) currentPrice() float64 {
	a.priceMu.Lock()
	defer a.priceMu.Unlock()
	return a.lastPrice
}

func (a *App) publishLog(text string) {
	a.bus.Publish(bus.TypeLog, bus.LogLine{Text: text})
}

// sleep 以可取消的方式等待，返回 false 表示 ctx 已结束。
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
