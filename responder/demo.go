package responder

import (
	"context"
	"strings"
	"time"
)

// Demo answers with scripted Markdown chosen by keyword, split into small
// deltas to exercise the streaming renderer.
type Demo struct {
	// ChunkRunes per delta. Default: 6.
	ChunkRunes int
	// Delay between deltas. Zero sends them back to back.
	Delay time.Duration
}

type script struct {
	keywords []string
	reply    string
}

var scripts = []script{
	{
		keywords: []string{"早餐", "breakfast"},
		reply: "### 早餐建议\n" +
			"- **燕麦 + 鸡蛋**，升糖慢、饱腹久\n" +
			"- 搭配一小把坚果\n" +
			"- 少喝含糖饮料，换成无糖豆浆\n\n" +
			"> 餐后 2 小时血糖目标：< 7.8 mmol/L",
	},
	{
		keywords: []string{"血糖", "glucose", "sugar"},
		reply: "最近的记录整体平稳。你可以这样做：\n" +
			"1. 饭后快走 10-15 分钟\n" +
			"2. 晚餐主食减量三分之一\n" +
			"3. 每周复测一次空腹血糖\n\n" +
			"参考：[中国 2 型糖尿病防治指南](https://www.diabetes.org.cn/)",
	},
	{
		keywords: []string{"运动", "散步", "exercise"},
		reply: "#### 今日运动\n" +
			"饭后散步是性价比最高的控糖方式。\n" +
			"- 时长：`15` 分钟起\n" +
			"- 强度：微微出汗即可",
	},
}

const fallbackReply = "收到！我是 SugarBuddy 演示助手。\n" +
	"你可以问我 **早餐**、**血糖** 或 **运动** 相关的问题。"

// Reply returns the scripted answer for prompt.
func (d *Demo) Reply(prompt string) string {
	p := strings.ToLower(prompt)
	for _, s := range scripts {
		for _, k := range s.keywords {
			if strings.Contains(p, k) {
				return s.reply
			}
		}
	}
	return fallbackReply
}

// Stream emits the scripted reply in rune-aligned chunks.
func (d *Demo) Stream(ctx context.Context, req Request, emit func(string) error) error {
	n := d.ChunkRunes
	if n <= 0 {
		n = 6
	}
	runes := []rune(d.Reply(req.Prompt))
	for i := 0; i < len(runes); i += n {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+n, len(runes))
		if err := emit(string(runes[i:end])); err != nil {
			return err
		}
		if d.Delay > 0 && end < len(runes) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.Delay):
			}
		}
	}
	return nil
}
