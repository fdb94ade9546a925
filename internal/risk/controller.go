package risk

import "fmt"

// Limits 为构造时固定的风控参数。
type Limits struct {
	MaxDrawdown   float64 // 最大回撤比例
	MaxSingleLoss float64 // 单笔最大亏损比例
}

// Controller 风险控制器。
// 除构造时固定的 Limits 外不持有任何状态，可在多个协程中无锁并发调用。
type Controller struct {
	limits Limits
}

// NewController 创建风险控制器。
func NewController(limits Limits) *Controller {
	if limits.MaxDrawdown <= 0 {
		limits.MaxDrawdown = 0.15
	}
	if limits.MaxSingleLoss <= 0 {
		limits.MaxSingleLoss = 0.05
	}
	return &Controller{limits: limits}
}

// CheckTradePermission 检查交易权限。
// 卖出永远放行；买入在回撤超过上限时被拦截。
func (c *Controller) CheckTradePermission(totalAsset, initialCapital float64, action string) (bool, string) {
	if action == "sell" {
		return true, "卖出操作允许"
	}

	if initialCapital <= 0 {
		return true, "初始状态"
	}

	drawdown := (initialCapital - totalAsset) / initialCapital
	if drawdown > c.limits.MaxDrawdown {
		return false, fmt.Sprintf("触发最大回撤限制 (%.1f%% > %.0f%%)",
			drawdown*100, c.limits.MaxDrawdown*100)
	}

	return true, "风控通过"
}

// CheckRisk 返回当前风险状态，与交易权限解耦，
// 便于在交易被拦截期间仍然持续输出回撤读数。
func (c *Controller) CheckRisk(totalAsset, initialCapital float64) (bool, string, float64) {
	if initialCapital <= 0 {
		return true, "风控通过(初始状态)", 0
	}

	drawdown := (initialCapital - totalAsset) / initialCapital
	if drawdown < 0 {
		drawdown = 0
	}

	if drawdown > c.limits.MaxDrawdown {
		return false, fmt.Sprintf("触发最大回撤限制 (%.1f%%)", drawdown*100), drawdown
	}

	return true, "风控通过", drawdown
}

// StopLoss 计算止损价格。
func (c *Controller) StopLoss(entryPrice float64) float64 {
	return entryPrice * (1 - c.limits.MaxSingleLoss)
}

// TakeProfit 按给定盈亏比计算止盈价格，riskReward<=0 时取默认值2。
func (c *Controller) TakeProfit(entryPrice, riskReward float64) float64 {
	if riskReward <= 0 {
		riskReward = 2.0
	}
	return entryPrice * (1 + c.limits.MaxSingleLoss*riskReward)
}
