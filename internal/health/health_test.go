package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	h := New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestReadyz_AllPass(t *testing.T) {
	h := New()
	h.AddCheck("conversation_store", func(context.Context) error { return nil })
	h.AddCheck("synthesis_cache", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["conversation_store"].Status != "ok" {
		t.Errorf("store check = %+v", body.Checks["conversation_store"])
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	h := New()
	h.AddCheck("conversation_store", func(context.Context) error {
		return errors.New("connection refused")
	})
	h.AddCheck("synthesis_cache", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q", body.Status)
	}
	got := body.Checks["conversation_store"]
	if got.Status != "fail" || got.Error != "connection refused" {
		t.Errorf("check = %+v", got)
	}
	if body.Checks["synthesis_cache"].Status != "ok" {
		t.Errorf("healthy check reported %+v", body.Checks["synthesis_cache"])
	}
}

func TestRegister(t *testing.T) {
	h := New()
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}
