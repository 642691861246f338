// Package classifier implements the dialogue layer's language-model
// hooks: strict-JSON intent classification over a candidate set and
// store FAQ answering from a fixed knowledge list.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/llm"
)

// DefaultTimeout bounds every model call; a slower answer is treated
// as no answer.
const DefaultTimeout = 5 * time.Second

// faqPrompt is the system instruction for store questions. The model
// answers from the list or returns an empty string.
const faqPrompt = `あなたは飲食店の店員です。
ユーザーからのメッセージに対して、以下のFAQリストを参照し、該当する質問に関連していれば、その質問に対応する回答を返してください。
もし、関連する質問がない場合は、空文字を返してください。

# FAQリスト:
質問: 営業時間について知りたい
回答: 土日祝日ともに11:00から23:00まで営業しております。

質問: 定休日について知りたい
回答: 毎週水曜日を定休日とさせていただいております。

質問: 駐車場の利用について知りたい
回答: 駐車場はございませんが、近隣にコインパーキングがございます。

質問: 個室や特別な席の利用について
回答: 個室はございません。車いす・ベビーカー対応の席はご用意しておりますので、ご利用の際は事前予約をお勧めいたします。

質問: 各種支払い方法について
回答: 主要なクレジットカードとキャッシュレス決済がご利用いただけます。詳細は店舗にお問い合わせください。

質問: アレルギー情報について
回答: 最新のアレルギー情報はホームページでご確認いただけます。`

// Classifier adapts an llm.Provider to dialogue.IntentClassifier.
type Classifier struct {
	provider llm.Provider
	log      *slog.Logger
	timeout  time.Duration
	faq      string
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Classifier) { c.log = log }
}

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

// WithFAQ replaces the built-in FAQ knowledge prompt.
func WithFAQ(prompt string) Option {
	return func(c *Classifier) { c.faq = prompt }
}

// New builds a Classifier over the given provider.
func New(provider llm.Provider, opts ...Option) *Classifier {
	c := &Classifier{
		provider: provider,
		log:      slog.Default(),
		timeout:  DefaultTimeout,
		faq:      faqPrompt,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ dialogue.IntentClassifier = (*Classifier)(nil)

// ClassifyIntent asks the model to pick exactly one intent label from
// the candidate set, expecting a {"intent": "..."} JSON object.
func (c *Classifier) ClassifyIntent(ctx context.Context, utterance string, candidates map[dialogue.Intent][]string) (dialogue.Intent, error) {
	if len(candidates) == 0 {
		return dialogue.IntentNone, fmt.Errorf("classifier: no candidate intents")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Complete(ctx, llm.Request{
		SystemPrompt: intentPrompt(candidates),
		UserMessage:  utterance,
		JSONResponse: true,
	})
	if err != nil {
		return dialogue.IntentNone, fmt.Errorf("classifier: intent call: %w", err)
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return dialogue.IntentNone, fmt.Errorf("classifier: malformed intent answer %q: %w", resp.Content, err)
	}
	intent := dialogue.Intent(strings.TrimSpace(out.Intent))
	if _, ok := candidates[intent]; !ok {
		return dialogue.IntentNone, fmt.Errorf("classifier: intent %q not in candidate set", out.Intent)
	}
	return intent, nil
}

// AnswerQuestion asks the FAQ prompt; an empty answer means the
// knowledge list has nothing relevant.
func (c *Classifier) AnswerQuestion(ctx context.Context, utterance string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Complete(ctx, llm.Request{
		SystemPrompt: c.faq,
		UserMessage:  utterance,
	})
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return "", nil
		}
		return "", fmt.Errorf("classifier: faq call: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// intentPrompt renders the classification instruction with the labels
// and their example phrases, in stable order.
func intentPrompt(candidates map[dialogue.Intent][]string) string {
	labels := make([]string, 0, len(candidates))
	for intent := range candidates {
		labels = append(labels, string(intent))
	}
	sort.Strings(labels)

	var b strings.Builder
	b.WriteString("以下のフレーズに対応する意図を選択してください。\n")
	for _, label := range labels {
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.Join(candidates[dialogue.Intent(label)], "、"))
		b.WriteString("\n")
	}
	b.WriteString("回答は必ず")
	b.WriteString(strings.Join(labels, ", "))
	b.WriteString(`のいずれかとし、{"intent": "<ラベル>"}のJSON形式で返してください。`)
	return b.String()
}
