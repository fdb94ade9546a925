package advisory

import (
	"strings"
	"testing"
)

func TestParseAdvicePlainJSON(t *testing.T) {
	advice, err := ParseAdvice(`{"action": "buy", "position": 55, "reason": "趋势向好", "confidence": 80}`)
	if err != nil {
		t.Fatalf("百分制建议应被接受: %v", err)
	}
	if advice.Action != ActionBuy || advice.Position != 55 || advice.Confidence != 80 {
		t.Errorf("解析结果错误: %+v", advice)
	}
}

func TestParseAdviceCodeFence(t *testing.T) {
	content := "```json\n{\"action\": \"SELL\", \"position\": 0, \"reason\": \"跌破均线\", \"confidence\": 70}\n```"
	advice, err := ParseAdvice(content)
	if err != nil {
		t.Fatalf("ParseAdvice: %v", err)
	}
	if advice.Action != ActionSell {
		t.Errorf("动作应归一化为小写 sell: %q", advice.Action)
	}
}

func TestParseAdviceSurroundingText(t *testing.T) {
	content := `根据分析，我的建议如下:
{"action": "hold", "position": 0, "reason": "震荡观望", "confidence": 60}
以上仅供参考。`
	advice, err := ParseAdvice(content)
	if err != nil {
		t.Fatalf("ParseAdvice: %v", err)
	}
	if advice.Action != ActionHold {
		t.Errorf("应提取出JSON中的建议: %+v", advice)
	}
}

func TestParseAdviceRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"无JSON", "抱歉，我无法给出建议。"},
		{"非法动作", `{"action": "short", "position": 50, "confidence": 80}`},
		{"仓位越界", `{"action": "buy", "position": 150, "confidence": 80}`},
		{"仓位为负", `{"action": "buy", "position": -5, "confidence": 80}`},
		{"置信度越界", `{"action": "buy", "position": 50, "confidence": 120}`},
		{"JSON损坏", `{"action": "buy", "position":`},
	}
	for _, tc := range cases {
		if _, err := ParseAdvice(tc.content); err == nil {
			t.Errorf("%s: 应返回错误", tc.name)
		}
	}
}

func TestBuildPromptHoldingState(t *testing.T) {
	data := PromptData{
		Symbol:       "BTC/USDT",
		Mode:         "swap",
		Leverage:     3,
		Price:        60000,
		Balance:      500,
		Position:     0.01,
		EntryPrice:   58000,
		PnLPercent:   3.45,
		HoldingHours: 6.5,
		TrendScore:   80,
	}

	prompt, err := BuildPrompt(data)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}

	for _, want := range []string{"BTC/USDT", "3x", "【资产】", "【市场数据】", "【状态】", "【任务】", "持仓中", "80/100"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("提示词缺少 %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPromptFlatState(t *testing.T) {
	prompt, err := BuildPrompt(PromptData{Symbol: "ETH/USDT", Mode: "spot", Leverage: 1})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(prompt, "当前空仓") {
		t.Errorf("空仓状态描述缺失:\n%s", prompt)
	}
	if strings.Contains(prompt, "1x") {
		t.Errorf("现货不应显示杠杆倍数")
	}
}
