package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	idempotency "github.com/ledgerline/idempotency-api/internal/app/idempotency"
)

// HeaderKey is the request header carrying the client's idempotency key.
const HeaderKey = "Idempotency-Key"

// storedResponse is the opaque result the engine memoizes for a wrapped
// endpoint: its status code, Content-Type and body, replayed byte for byte.
// Other response headers are not kept.
type storedResponse struct {
	StatusCode  int    `json:"statusCode"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Idempotency wraps mutating endpoints with at-most-once execution keyed by
// the Idempotency-Key header. Requests without the header pass through
// untouched. The fingerprint binds the key to method, path, and body, so
// re-sending the same key with a different payload is rejected rather than
// silently replayed.
func Idempotency(engine *idempotency.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "could not read request body")
				return
			}
			_ = r.Body.Close()

			fp, err := engine.Fingerprint(map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
				"body":   body,
			})
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "FINGERPRINT_FAILED", "could not fingerprint request")
				return
			}

			result, err := engine.Execute(r.Context(), key, fp, func(hctx context.Context) ([]byte, error) {
				rec := newResponseRecorder()
				req := r.Clone(hctx)
				req.Body = io.NopCloser(bytes.NewReader(body))
				next.ServeHTTP(rec, req)
				return json.Marshal(storedResponse{
					StatusCode:  rec.status,
					ContentType: rec.Header().Get("Content-Type"),
					Body:        rec.buf.Bytes(),
				})
			}, idempotency.WithMetadata(map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			}))
			if err != nil {
				writeEngineError(w, r, err)
				return
			}

			var stored storedResponse
			if err := json.Unmarshal(result, &stored); err != nil {
				writeError(w, r, http.StatusInternalServerError, "REPLAY_FAILED", "stored response is unreadable")
				return
			}
			if stored.ContentType != "" {
				w.Header().Set("Content-Type", stored.ContentType)
			}
			w.WriteHeader(stored.StatusCode)
			_, _ = w.Write(stored.Body)
		})
	}
}

// responseRecorder captures a downstream handler's response so it can be
// memoized and replayed.
type responseRecorder struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header), status: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

func (r *responseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
