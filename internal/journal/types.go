package journal

import (
	"time"
)

// EventType 为流水事件类别。
type EventType string

const (
	// EventTrade 委托提交成功。
	EventTrade EventType = "trade"
	// EventAdvice 顾问建议（无论是否被执行）。
	EventAdvice EventType = "advice"
	// EventRiskBlock 风控拦截。
	EventRiskBlock EventType = "risk_block"
	// EventSwap 热切换结果。
	EventSwap EventType = "swap"
	// EventError 运行异常。
	EventError EventType = "error"
)

// Event 为一条流水记录。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TradePayload 记录一笔委托的要素。
type TradePayload struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
	StopLoss float64 `json:"stop_loss,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// AdvicePayload 记录一次顾问建议及其处置。
type AdvicePayload struct {
	Action     string  `json:"action"`
	Position   float64 `json:"position"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	TrendScore int     `json:"trend_score"`
	Executed   bool    `json:"executed"`
	Note       string  `json:"note,omitempty"`
}

// RiskBlockPayload 记录一次风控拦截。
type RiskBlockPayload struct {
	Action   string  `json:"action"`
	Message  string  `json:"message"`
	Drawdown float64 `json:"drawdown"`
}

// SwapPayload 记录一次热切换。
type SwapPayload struct {
	Symbol   string `json:"symbol"`
	Mode     string `json:"mode"`
	Leverage int    `json:"leverage"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// ErrorPayload 记录一次运行异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
