package risk

import (
	"math"
	"strings"
	"testing"
)

func TestCheckTradePermissionSellAlwaysAllowed(t *testing.T) {
	c := NewController(Limits{MaxDrawdown: 0.15, MaxSingleLoss: 0.05})

	cases := []struct{ total, initial float64 }{
		{0, 0},
		{840, 1000},
		{100, 1000},
		{2000, 1000},
		{-5, 1000},
	}
	for _, tc := range cases {
		allowed, _ := c.CheckTradePermission(tc.total, tc.initial, "sell")
		if !allowed {
			t.Errorf("sell 应始终允许: total=%v initial=%v", tc.total, tc.initial)
		}
	}
}

func TestCheckTradePermissionBuyDrawdown(t *testing.T) {
	c := NewController(Limits{MaxDrawdown: 0.15, MaxSingleLoss: 0.05})

	// 无基准本金时放行
	if allowed, _ := c.CheckTradePermission(500, 0, "buy"); !allowed {
		t.Errorf("initial<=0 时 buy 应放行")
	}

	// 回撤 16% > 15%，买入拦截
	allowed, reason := c.CheckTradePermission(840, 1000, "buy")
	if allowed {
		t.Fatalf("回撤16%%时 buy 应被拦截")
	}
	if !strings.Contains(reason, "16.0%") {
		t.Errorf("拦截理由应包含计算出的回撤, got %q", reason)
	}

	// 回撤恰好等于上限，不拦截
	if allowed, _ := c.CheckTradePermission(850, 1000, "buy"); !allowed {
		t.Errorf("回撤等于上限时不应拦截")
	}

	// 盈利状态放行
	if allowed, _ := c.CheckTradePermission(1200, 1000, "buy"); !allowed {
		t.Errorf("盈利状态 buy 应放行")
	}
}

func TestCheckRisk(t *testing.T) {
	c := NewController(Limits{MaxDrawdown: 0.15, MaxSingleLoss: 0.05})

	ok, _, dd := c.CheckRisk(900, 1000)
	if !ok || math.Abs(dd-0.10) > 1e-9 {
		t.Errorf("回撤10%%应通过: ok=%v dd=%v", ok, dd)
	}

	// 盈利时回撤被截断为0
	ok, _, dd = c.CheckRisk(1300, 1000)
	if !ok || dd != 0 {
		t.Errorf("盈利时回撤应为0: ok=%v dd=%v", ok, dd)
	}

	ok, _, dd = c.CheckRisk(840, 1000)
	if ok {
		t.Errorf("回撤16%%应告警")
	}
	if math.Abs(dd-0.16) > 1e-9 {
		t.Errorf("回撤值错误: got %v", dd)
	}

	// 初始状态
	ok, _, dd = c.CheckRisk(100, 0)
	if !ok || dd != 0 {
		t.Errorf("无基准时应通过且回撤为0")
	}
}

func TestStopLossTakeProfit(t *testing.T) {
	c := NewController(Limits{MaxDrawdown: 0.15, MaxSingleLoss: 0.05})

	if got := c.StopLoss(60000); math.Abs(got-57000) > 1e-6 {
		t.Errorf("StopLoss(60000) = %v, want 57000", got)
	}
	if got := c.TakeProfit(60000, 2.0); math.Abs(got-66000) > 1e-6 {
		t.Errorf("TakeProfit(60000, 2) = %v, want 66000", got)
	}
	// riskReward 非法时使用默认2倍
	if got := c.TakeProfit(60000, 0); math.Abs(got-66000) > 1e-6 {
		t.Errorf("TakeProfit(60000, 0) = %v, want 66000", got)
	}
}
