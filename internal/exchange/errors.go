package exchange

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrConnection 表示启动阶段无法建立交易所连接，属于致命错误。
	ErrConnection = errors.New("exchange connection failed")
	// ErrNetwork 表示瞬时网络异常，上层以连接状态降级处理，循环照常重试。
	ErrNetwork = errors.New("exchange network error")
)

// IsNetworkError 判断错误是否为瞬时网络异常。
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// isTransient 判断底层 ccxt 错误是否属于网络类异常。
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
