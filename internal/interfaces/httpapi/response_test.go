package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sonic "github.com/bytedance/sonic"

	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body %q: %v", rec.Body.String(), err)
	}
	if body["apiVersion"] != apiVersion {
		t.Fatalf("expected apiVersion=%s, got %v", apiVersion, body["apiVersion"])
	}
	return body
}

func TestWriteSuccess(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeSuccess(context.Background(), rec, http.StatusOK, map[string]string{"status": "ok"})

	body := decodeEnvelope(t, rec)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if _, ok := body["data"]; !ok {
		t.Fatalf("expected data key in success response")
	}
	if _, ok := body["error"]; ok {
		t.Fatalf("did not expect error key in success response")
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantStatus  string
		wantReason  string
		wantMessage string
	}{
		{
			name:        "invalid input keeps message",
			err:         fmt.Errorf("%w: bad payload", usecase.ErrInvalidInput),
			wantCode:    http.StatusBadRequest,
			wantStatus:  "INVALID_ARGUMENT",
			wantReason:  "invalidInput",
			wantMessage: "invalid input: bad payload",
		},
		{
			name:        "already executed",
			err:         fmt.Errorf("%w: promotion already ran", usecase.ErrAlreadyExecuted),
			wantCode:    http.StatusPreconditionFailed,
			wantStatus:  "FAILED_PRECONDITION",
			wantReason:  "alreadyExecuted",
			wantMessage: "",
		},
		{
			name:        "unmapped error is masked",
			err:         errors.New("document store: deadline exceeded on leagues/major"),
			wantCode:    http.StatusInternalServerError,
			wantStatus:  "INTERNAL",
			wantReason:  "internalError",
			wantMessage: internalMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(context.Background(), rec, tt.err)

			body := decodeEnvelope(t, rec)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			errObj, _ := body["error"].(map[string]any)
			if errObj["status"] != tt.wantStatus {
				t.Fatalf("expected status %s, got %v", tt.wantStatus, errObj["status"])
			}
			if tt.wantMessage != "" && errObj["message"] != tt.wantMessage {
				t.Fatalf("expected message %q, got %v", tt.wantMessage, errObj["message"])
			}
			items, _ := errObj["errors"].([]any)
			if len(items) != 1 {
				t.Fatalf("expected one error item, got %v", errObj["errors"])
			}
			item, _ := items[0].(map[string]any)
			if item["reason"] != tt.wantReason || item["domain"] != errorDomain {
				t.Fatalf("unexpected error item: %v", item)
			}
		})
	}
}
