package bus

import (
	"sync"
	"time"
)

// 事件类型，对应展示层订阅的各类更新。
const (
	TypePrice     = "price"
	TypeAdvice    = "advice"
	TypeAccount   = "account"
	TypeStatus    = "status"
	TypeRisk      = "risk"
	TypeLog       = "log"
	TypeReconnect = "reconnect"
)

// Event 为推送给订阅者的统一信封。
type Event struct {
	Type    string      `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// PriceUpdate 为最新价推送，ColorHint 标记相对上一次的涨跌方向。
type PriceUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ColorHint string  `json:"color_hint"` // up | down | flat
}

// AdviceUpdate 为顾问建议推送。
type AdviceUpdate struct {
	Action     string  `json:"action"`
	Position   float64 `json:"position"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Executed   bool    `json:"executed"`
	Note       string  `json:"note,omitempty"`
}

// AccountUpdate 为账户快照推送。
type AccountUpdate struct {
	Balance        float64 `json:"balance"`
	Position       float64 `json:"position"`
	TotalAsset     float64 `json:"total_asset"`
	InitialCapital float64 `json:"initial_capital"`
	PnLPercent     float64 `json:"pnl_percent"`
}

// StatusUpdate 为连接状态推送。
type StatusUpdate struct {
	Connected bool   `json:"connected"`
	Detail    string `json:"detail,omitempty"`
}

// RiskUpdate 为风控状态推送。
type RiskUpdate struct {
	Message  string  `json:"message"`
	Drawdown float64 `json:"drawdown"`
	Alert    bool    `json:"alert"`
}

// LogLine 为运行日志推送。
type LogLine struct {
	Text string `json:"text"`
}

// ReconnectResult 为热切换结果推送。
type ReconnectResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Bus 是进程内的事件总线，发布永不阻塞:
// 订阅者的缓冲满时丢弃最旧事件，慢消费者不会拖垮巡航循环。
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// New 创建事件总线。
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe 注册一个订阅者，返回事件通道与取消函数。
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish 把事件广播给所有订阅者。
func (b *Bus) Publish(eventType string, payload interface{}) {
	event := Event{Type: eventType, At: time.Now(), Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		for {
			select {
			case ch <- event:
			default:
				// 缓冲满，淘汰最旧的一条再试
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
