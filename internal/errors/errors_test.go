package errors

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{PayloadTooLarge("big"), http.StatusRequestEntityTooLarge},
		{InsufficientData(nil, "few"), http.StatusUnprocessableEntity},
		{Persistence(stderrors.New("db down"), "write"), http.StatusInternalServerError},
		{RateLimit("slow down"), http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		if tt.err.StatusCode != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.err.Code, tt.want, tt.err.StatusCode)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Persistence(cause, "could not save records")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if err.Error() != "PERSISTENCE_ERROR: could not save records (caused by: disk full)" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestWriteError_PlainErrorBecomesInternal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := httptest.NewRecorder()

	WriteError(w, logger, stderrors.New("boom"), "req-1")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != string(CodeInternal) || body.Error.RequestID != "req-1" {
		t.Errorf("unexpected envelope %+v", body)
	}
}

func TestWriteError_Details(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := httptest.NewRecorder()

	WriteError(w, logger, Validation("missing columns").WithDetails([]string{"AMOUNT"}), "")

	var body struct {
		Error struct {
			Details []string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Error.Details) != 1 || body.Error.Details[0] != "AMOUNT" {
		t.Errorf("expected details [AMOUNT], got %v", body.Error.Details)
	}
}
