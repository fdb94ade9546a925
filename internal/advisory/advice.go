package advisory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 顾问动作常量。
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// Advice 为大模型顾问返回的单次决策建议。
// Position 与 Confidence 均为百分制，与提示词约定的输出格式一致。
type Advice struct {
	Action     string  `json:"action"`
	Position   float64 `json:"position"`   // 建议仓位比例 0-100
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"` // 置信度 0-100
}

// ParseAdvice 从模型回复文本中提取并校验建议。
// 模型偶尔会把 JSON 包进 Markdown 代码块或附带解释文字，
// 这里取第一个 '{' 到最后一个 '}' 之间的内容解析。
func ParseAdvice(content string) (*Advice, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("回复中未找到JSON对象: %q", truncate(content, 120))
	}

	var advice Advice
	if err := json.Unmarshal([]byte(text[start:end+1]), &advice); err != nil {
		return nil, fmt.Errorf("解析顾问回复失败: %w", err)
	}

	advice.Action = strings.ToLower(strings.TrimSpace(advice.Action))
	if err := advice.Validate(); err != nil {
		return nil, err
	}

	return &advice, nil
}

// Validate 校验建议字段的合法范围。
func (a *Advice) Validate() error {
	switch a.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("非法的顾问动作: %q", a.Action)
	}
	if a.Position < 0 || a.Position > 100 {
		return fmt.Errorf("建议仓位超出[0,100]: %v", a.Position)
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		return fmt.Errorf("置信度超出[0,100]: %v", a.Confidence)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
