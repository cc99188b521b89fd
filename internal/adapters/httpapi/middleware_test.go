package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	memclock "github.com/ledgerline/idempotency-api/internal/adapters/memory/clock"
	memkeystore "github.com/ledgerline/idempotency-api/internal/adapters/memory/keystore"
	idempotency "github.com/ledgerline/idempotency-api/internal/app/idempotency"
	"github.com/ledgerline/idempotency-api/internal/ports/out/auditlog"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	eng, err := idempotency.NewEngine(memkeystore.NewStore(), memclock.NewManualClock(time.Unix(0, 0)), idempotency.Config{
		LockTTL:   30 * time.Second,
		Retention: 24 * time.Hour,
		OnAudit:   func(auditlog.Event) {},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewRouter(eng, NewPaymentsHandler())
}

func postPayment(t *testing.T, h http.Handler, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIdempotency_DuplicateRequestReplaysResponse(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)

	body := `{"amount":100,"currency":"usd","reference":"inv-42"}`
	first := postPayment(t, h, "key-1", body)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status=%d body=%s", first.Code, first.Body)
	}
	second := postPayment(t, h, "key-1", body)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status=%d body=%s", second.Code, second.Body)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay diverged:\nfirst:  %s\nsecond: %s", first.Body, second.Body)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("replay body unparseable: %s (%v)", second.Body, err)
	}
}

func TestIdempotency_SameKeyDifferentPayloadRejected(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)

	if rr := postPayment(t, h, "key-2", `{"amount":100,"currency":"usd"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := postPayment(t, h, "key-2", `{"amount":200,"currency":"usd"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rr.Code)
	}
	var eb errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &eb); err != nil {
		t.Fatalf("error body unparseable: %s", rr.Body)
	}
	if eb.Error.Code != idempotency.CodeFingerprintMismatch {
		t.Fatalf("code=%q, want %q", eb.Error.Code, idempotency.CodeFingerprintMismatch)
	}
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)

	first := postPayment(t, h, "", `{"amount":100,"currency":"usd"}`)
	second := postPayment(t, h, "", `{"amount":100,"currency":"usd"}`)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("statuses: %d %d", first.Code, second.Code)
	}
	// Without a key the handler runs twice and mints two payment IDs.
	if first.Body.String() == second.Body.String() {
		t.Fatalf("unkeyed requests were deduplicated: %s", first.Body)
	}
}

func TestIdempotency_ValidationFailureIsAlsoMemoized(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)

	// A 422 from the wrapped handler is a settled response, not a handler
	// failure, so the retry replays it without rerunning the endpoint.
	first := postPayment(t, h, "key-3", `{"amount":-5,"currency":"usd"}`)
	if first.Code != http.StatusUnprocessableEntity {
		t.Fatalf("first status=%d", first.Code)
	}
	second := postPayment(t, h, "key-3", `{"amount":-5,"currency":"usd"}`)
	if second.Code != http.StatusUnprocessableEntity || first.Body.String() != second.Body.String() {
		t.Fatalf("replayed validation failure diverged: %d %s", second.Code, second.Body)
	}
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body)
	}
}
