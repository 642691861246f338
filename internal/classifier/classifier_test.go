package classifier_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kaiwa-ai/uketsuke/internal/classifier"
	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/llm"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/llm/mock"
)

var candidates = map[dialogue.Intent][]string{
	dialogue.IntentNewReservation:    {"予約したい"},
	dialogue.IntentCancelReservation: {"キャンセルしたい"},
}

func TestClassifyIntent(t *testing.T) {
	p := &mock.Provider{Response: &llm.Response{Content: `{"intent": "NEW_RESERVATION"}`}}
	c := classifier.New(p)

	intent, err := c.ClassifyIntent(context.Background(), "席を取りたいんですが", candidates)
	if err != nil {
		t.Fatalf("ClassifyIntent: %v", err)
	}
	if intent != dialogue.IntentNewReservation {
		t.Errorf("intent = %s", intent)
	}

	req := p.Calls[0].Req
	if !req.JSONResponse {
		t.Error("JSONResponse not requested")
	}
	if !strings.Contains(req.SystemPrompt, "NEW_RESERVATION") ||
		!strings.Contains(req.SystemPrompt, "予約したい") {
		t.Errorf("prompt missing labels or phrases: %q", req.SystemPrompt)
	}
	if req.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", req.Temperature)
	}
}

func TestClassifyIntent_RejectsUnknownLabel(t *testing.T) {
	p := &mock.Provider{Response: &llm.Response{Content: `{"intent": "MADE_UP"}`}}
	c := classifier.New(p)

	if _, err := c.ClassifyIntent(context.Background(), "x", candidates); err == nil {
		t.Fatal("unknown label accepted")
	}
}

func TestClassifyIntent_MalformedJSON(t *testing.T) {
	p := &mock.Provider{Response: &llm.Response{Content: "NEW_RESERVATION"}}
	c := classifier.New(p)

	if _, err := c.ClassifyIntent(context.Background(), "x", candidates); err == nil {
		t.Fatal("malformed answer accepted")
	}
}

func TestClassifyIntent_ProviderError(t *testing.T) {
	p := &mock.Provider{Err: errors.New("backend down")}
	c := classifier.New(p)

	if _, err := c.ClassifyIntent(context.Background(), "x", candidates); err == nil {
		t.Fatal("provider error swallowed")
	}
}

func TestAnswerQuestion(t *testing.T) {
	p := &mock.Provider{Response: &llm.Response{Content: " 11時から23時まで営業しております。 "}}
	c := classifier.New(p)

	answer, err := c.AnswerQuestion(context.Background(), "営業時間を教えてください")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if answer != "11時から23時まで営業しております。" {
		t.Errorf("answer = %q", answer)
	}
}

func TestAnswerQuestion_EmptyMeansNoAnswer(t *testing.T) {
	p := &mock.Provider{} // zero value returns ErrEmptyResponse
	c := classifier.New(p)

	answer, err := c.AnswerQuestion(context.Background(), "宇宙の果てはどこですか")
	if err != nil {
		t.Fatalf("empty response mapped to error: %v", err)
	}
	if answer != "" {
		t.Errorf("answer = %q, want empty", answer)
	}
}
