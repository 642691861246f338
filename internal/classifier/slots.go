package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaiwa-ai/uketsuke/internal/nlu"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/llm"
)

// slotPrompt instructs the model to extract reservation slots into a
// fixed JSON object. Unknown values stay empty.
const slotPrompt = `あなたは飲食店の予約受付担当です。
以下の発話から予約情報を抽出し、次のJSON形式で返してください。
値が発話に含まれていない場合は空文字にしてください。
日付はMM/DD形式、時間は24時間のHH:MM形式、人数は数字のみで返してください。
{"日付": "", "時間": "", "人数": "", "名前": ""}`

// ExtractSlots asks the model for the reservation slots of one
// utterance. Values that fail canonical-form validation are dropped so
// a hallucinated date can never reach the state tracker.
func (c *Classifier) ExtractSlots(ctx context.Context, utterance string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Complete(ctx, llm.Request{
		SystemPrompt: slotPrompt,
		UserMessage:  utterance,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: slot call: %w", err)
	}

	var out map[string]string
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return nil, fmt.Errorf("classifier: malformed slot answer %q: %w", resp.Content, err)
	}

	slots := map[string]string{
		nlu.SlotDate:        "",
		nlu.SlotTime:        "",
		nlu.SlotPersonCount: "",
		nlu.SlotName:        "",
	}
	if v := strings.TrimSpace(out[nlu.SlotDate]); nlu.ValidDate(v) {
		slots[nlu.SlotDate] = v
	}
	if v := strings.TrimSpace(out[nlu.SlotTime]); nlu.ValidTime(v) {
		slots[nlu.SlotTime] = v
	}
	if v := strings.TrimSpace(out[nlu.SlotPersonCount]); nlu.ValidPersonCount(v) {
		slots[nlu.SlotPersonCount] = v
	}
	slots[nlu.SlotName] = strings.TrimSpace(out[nlu.SlotName])
	return slots, nil
}
