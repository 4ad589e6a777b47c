package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFailWithDetailsEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	FailWithDetails(rec, http.StatusUnprocessableEntity, "circular_dependency", "cycle", map[string]any{"cycle": []string{"A", "B", "A"}}, "req-1")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Success || body.Error.Code != "circular_dependency" || body.RequestID != "req-1" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if _, ok := body.Error.Details["cycle"]; !ok {
		t.Fatalf("expected cycle details, got %+v", body.Error.Details)
	}
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]string{"status": "ok"}, "req-2")

	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	var body Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !body.Success || body.Error != nil {
		t.Fatalf("unexpected envelope: %+v", body)
	}
}
