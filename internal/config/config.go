package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/secrets.json"
	envPrefix         = "cruise"
)

// Load 读取 JSON 配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// UpdateTradingParams 在热切换成功后把新的交易参数回写到配置文件，
// 仅更新 trading.symbol/mode/leverage 三个键，其余内容保持不变。
func UpdateTradingParams(path, symbol, mode string, leverage int) error {
	if path == "" {
		path = defaultConfigPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.Set("trading.symbol", symbol)
	v.Set("trading.mode", mode)
	v.Set("trading.leverage", leverage)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("回写交易参数失败: %w", err)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "okx")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.proxy", "")

	v.SetDefault("trading.symbol", "BTC/USDT")
	v.SetDefault("trading.mode", ModeSpot)
	v.SetDefault("trading.leverage", 1)
	v.SetDefault("trading.timeframe", "5m")
	v.SetDefault("trading.kline_limit", 200)
	v.SetDefault("trading.slippage_tolerance", 0.005)
	v.SetDefault("trading.cooling_off", "30m")

	v.SetDefault("advisory.base_url", "https://api.deepseek.com")
	v.SetDefault("advisory.model", "deepseek-chat")
	v.SetDefault("advisory.timeout", "60s")

	v.SetDefault("risk.max_drawdown", 0.15)
	v.SetDefault("risk.max_single_loss", 0.05)

	v.SetDefault("state.path", "data/trading_account.json")

	v.SetDefault("database.path", "data/ai_cruise.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.price_interval", "2s")
	v.SetDefault("scheduler.sync_interval", "10s")
	v.SetDefault("scheduler.advisory_interval", "3m")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.listen_addr", ":8686")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
