package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// 交易模式常量。
const (
	ModeSpot = "spot"
	ModeSwap = "swap"
)

// DefaultSymbols 为预设交易对列表，供展示层的切换面板使用。
var DefaultSymbols = []string{
	"BTC/USDT", "ETH/USDT", "SOL/USDT", "BNB/USDT", "XRP/USDT",
	"DOGE/USDT", "ADA/USDT", "AVAX/USDT", "LINK/USDT", "DOT/USDT",
}

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Advisory  AdvisoryConfig  `mapstructure:"advisory"`
	Risk      RiskConfig      `mapstructure:"risk"`
	State     StateConfig     `mapstructure:"state"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接凭证。
type ExchangeConfig struct {
	Name       string `mapstructure:"name"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	APIPass    string `mapstructure:"api_passphrase"`
	UseSandbox bool   `mapstructure:"use_sandbox"`
	Proxy      string `mapstructure:"proxy"`
}

// TradingConfig 描述当前交易参数与下单行为。
// Symbol/Mode/Leverage 在热切换成功后会被回写到配置文件。
type TradingConfig struct {
	Symbol            string        `mapstructure:"symbol"`
	Mode              string        `mapstructure:"mode"`
	Leverage          int           `mapstructure:"leverage"`
	Timeframe         string        `mapstructure:"timeframe"`
	KlineLimit        int           `mapstructure:"kline_limit"`
	SlippageTolerance float64       `mapstructure:"slippage_tolerance"`
	CoolingOff        time.Duration `mapstructure:"cooling_off"`
}

// AdvisoryConfig 描述大模型顾问调用参数。
type AdvisoryConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RiskConfig 管理风控参数。
type RiskConfig struct {
	MaxDrawdown   float64 `mapstructure:"max_drawdown"`
	MaxSingleLoss float64 `mapstructure:"max_single_loss"`
}

// StateConfig 管理本地账户状态文件。
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig 管理交易流水数据库。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制两条巡航循环的节奏。
type SchedulerConfig struct {
	PriceInterval    time.Duration `mapstructure:"price_interval"`
	SyncInterval     time.Duration `mapstructure:"sync_interval"`
	AdvisoryInterval time.Duration `mapstructure:"advisory_interval"`
}

// TelemetryConfig 控制面向展示层的推送服务。
type TelemetryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		err = multierr.Append(err, errors.New("exchange.api_key 与 api_secret 不能为空"))
	}
	if c.Trading.Symbol == "" {
		err = multierr.Append(err, errors.New("trading.symbol 不能为空"))
	}
	if c.Trading.Mode != ModeSpot && c.Trading.Mode != ModeSwap {
		err = multierr.Append(err, fmt.Errorf("trading.mode 必须为 %q 或 %q", ModeSpot, ModeSwap))
	}
	if c.Trading.Leverage < 1 {
		err = multierr.Append(err, errors.New("trading.leverage 必须不小于1"))
	}
	if c.Trading.Timeframe == "" {
		err = multierr.Append(err, errors.New("trading.timeframe 不能为空"))
	}
	if c.Trading.KlineLimit < 50 {
		err = multierr.Append(err, errors.New("trading.kline_limit 不能小于50"))
	}
	if c.Trading.SlippageTolerance < 0 || c.Trading.SlippageTolerance > 0.2 {
		err = multierr.Append(err, errors.New("trading.slippage_tolerance 应位于[0,0.2]"))
	}
	if c.Trading.CoolingOff < 0 {
		err = multierr.Append(err, errors.New("trading.cooling_off 不能为负"))
	}
	if c.Advisory.APIKey == "" {
		err = multierr.Append(err, errors.New("advisory.api_key 不能为空"))
	}
	if c.Advisory.Model == "" {
		err = multierr.Append(err, errors.New("advisory.model 不能为空"))
	}
	if c.Advisory.Timeout <= 0 {
		err = multierr.Append(err, errors.New("advisory.timeout 必须大于0"))
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown > 1 {
		err = multierr.Append(err, errors.New("risk.max_drawdown 必须位于(0,1]"))
	}
	if c.Risk.MaxSingleLoss <= 0 || c.Risk.MaxSingleLoss > 1 {
		err = multierr.Append(err, errors.New("risk.max_single_loss 必须位于(0,1]"))
	}
	if c.State.Path == "" {
		err = multierr.Append(err, errors.New("state.path 不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.PriceInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.price_interval 必须大于0"))
	}
	if c.Scheduler.SyncInterval < c.Scheduler.PriceInterval {
		err = multierr.Append(err, errors.New("scheduler.sync_interval 不应小于 price_interval"))
	}
	if c.Scheduler.AdvisoryInterval < c.Scheduler.SyncInterval {
		err = multierr.Append(err, errors.New("scheduler.advisory_interval 不应小于 sync_interval"))
	}
	if c.Telemetry.Enabled && c.Telemetry.ListenAddr == "" {
		err = multierr.Append(err, errors.New("telemetry.listen_addr 不能为空"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
