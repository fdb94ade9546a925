package advisory

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// systemPrompt 约束模型的角色与输出格式。
const systemPrompt = `你是一名谨慎的加密货币交易顾问，负责单一交易对的仓位决策。
你只输出一个JSON对象，不要输出其他任何文字，格式如下:
{"action": "buy|sell|hold", "position": 0-100, "reason": "一句话理由", "confidence": 0-100}
position 表示建议动用的可用资金比例(%)，confidence 为置信度(%)，action 为 sell 或 hold 时 position 可填0。`

// PromptData 为构建用户提示词所需的全部上下文。
type PromptData struct {
	Symbol         string
	Mode           string
	Leverage       int
	Price          float64
	Balance        float64
	Position       float64
	PositionValue  float64
	TotalAsset     float64
	InitialCapital float64
	EntryPrice     float64
	PnLPercent     float64
	HoldingHours   float64
	Drawdown       float64

	MA5        float64
	MA20       float64
	MA50       float64
	RSI        float64
	DIF        float64
	DEA        float64
	MACD       float64
	Volatility float64
	TrendScore int
}

var promptTemplate = template.Must(template.New("advice").Parse(`当前时间: {{.Now}}
交易对: {{.Symbol}} ({{.Mode}}{{if gt .Leverage 1}} {{.Leverage}}x{{end}})

【资产】
可用余额: {{printf "%.2f" .Balance}} USDT
持仓数量: {{printf "%.6f" .Position}}
持仓价值: {{printf "%.2f" .PositionValue}} USDT
总资产: {{printf "%.2f" .TotalAsset}} USDT
初始本金: {{printf "%.2f" .InitialCapital}} USDT
当前回撤: {{printf "%.2f" .DrawdownPct}}%

【市场数据】
最新价格: {{printf "%.4f" .Price}}
MA5/MA20/MA50: {{printf "%.4f" .MA5}} / {{printf "%.4f" .MA20}} / {{printf "%.4f" .MA50}}
RSI(14): {{printf "%.2f" .RSI}}
MACD: DIF={{printf "%.4f" .DIF}} DEA={{printf "%.4f" .DEA}} 柱={{printf "%.4f" .MACD}}
波动率: {{printf "%.2f" .Volatility}}%
趋势评分: {{.TrendScore}}/100

【状态】
{{if .Holding -}}
持仓中，入场价 {{printf "%.4f" .EntryPrice}}，浮动盈亏 {{printf "%.2f" .PnLPercent}}%，已持有 {{printf "%.1f" .HoldingHours}} 小时
{{- else -}}
当前空仓
{{- end}}

【任务】
综合以上信息给出下一步操作建议，并严格按系统约定的JSON格式输出。`))

type promptContext struct {
	PromptData
	Now         string
	DrawdownPct float64
	Holding     bool
}

// BuildPrompt 渲染一次决策所需的用户提示词。
func BuildPrompt(data PromptData) (string, error) {
	ctx := promptContext{
		PromptData:  data,
		Now:         time.Now().Format("2006-01-02 15:04:05"),
		DrawdownPct: data.Drawdown * 100,
		Holding:     data.Position > 0 && data.EntryPrice > 0,
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}
	return buf.String(), nil
}
