package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crsmanager/crs-backend/api/responses"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
	pkgredis "github.com/crsmanager/crs-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	idempotencyHeader     = "Idempotency-Key"
	replayedHeader        = "Idempotent-Replayed"
	maxIdempotencyKeyLen  = 128
	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = 2 * time.Minute
)

// Creates only. Buyer updates and deletes, and challan patches, converge on
// the same state when repeated.
var guardedRoutes = map[string]struct{}{
	http.MethodPost + " /api/v1/buyers":   {},
	http.MethodPost + " /api/v1/challans": {},
}

func guarded(method, path string) bool {
	_, ok := guardedRoutes[method+" "+strings.TrimSuffix(path, "/")]
	return ok
}

type storedResponse struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type,omitempty"`
	Body        string    `json:"body"`
	RequestHash string    `json:"request_hash"`
	Pending     bool      `json:"pending,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

// Idempotency replays the stored response of a buyer or challan create that
// is retried with the same Idempotency-Key. A retry arriving while the first
// attempt is still running gets a 409, as does reusing a key with a different
// body. A nil store disables the guard.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	g := &idempotencyGuard{store: store, ttl: ttl, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Sub-routers have not resolved their pattern yet; match the raw path.
			if store == nil || !guarded(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next, clientKey)
		})
	}
}

func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, clientKey string) {
	ctx := r.Context()
	if len(clientKey) > maxIdempotencyKeyLen {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key too long").
			WithDetails(map[string]any{"header": idempotencyHeader, "max_length": maxIdempotencyKeyLen}))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	requestHash := hashBody(body)
	key := g.store.IdempotencyKey(r.Method+"|"+r.URL.Path, clientKey)

	prior, err := g.lookup(ctx, key)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}
	if prior == nil {
		// Reserve the key before running the create so a concurrent retry
		// cannot run it a second time.
		reserved, reserveErr := g.reserve(ctx, key, requestHash)
		if reserveErr != nil {
			responses.WriteError(ctx, g.logg, w, reserveErr)
			return
		}
		if !reserved {
			if prior, err = g.lookup(ctx, key); err != nil {
				responses.WriteError(ctx, g.logg, w, err)
				return
			}
			if prior == nil {
				prior = &storedResponse{RequestHash: requestHash, Pending: true}
			}
		}
	}
	if prior != nil {
		g.answerPrior(ctx, w, prior, requestHash)
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)

	// Failed creates release the key so the client can retry them.
	status := capture.statusOrOK()
	if status >= http.StatusBadRequest {
		if err := g.store.Del(ctx, key); err != nil {
			g.logError(ctx, "release idempotency key", err)
		}
		return
	}
	g.remember(ctx, key, storedResponse{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		RequestHash: requestHash,
		StoredAt:    time.Now().UTC(),
	})
}

func (g *idempotencyGuard) answerPrior(ctx context.Context, w http.ResponseWriter, prior *storedResponse, requestHash string) {
	switch {
	case prior.RequestHash != requestHash:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case prior.Pending:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress").
			WithDetails(map[string]any{"in_progress": true}))
	default:
		prior.replay(w)
	}
}

func (g *idempotencyGuard) reserve(ctx context.Context, key, requestHash string) (bool, error) {
	payload, err := json.Marshal(storedResponse{RequestHash: requestHash, Pending: true, StoredAt: time.Now().UTC()})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal idempotency marker")
	}
	ttl := pendingTTL
	if g.ttl < ttl {
		ttl = g.ttl
	}
	reserved, err := g.store.SetNX(ctx, key, string(payload), ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return reserved, nil
}

func (g *idempotencyGuard) lookup(ctx context.Context, key string) (*storedResponse, error) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &stored, nil
}

func (g *idempotencyGuard) remember(ctx context.Context, key string, stored storedResponse) {
	payload, err := json.Marshal(stored)
	if err != nil {
		g.logError(ctx, "marshal idempotency record", err)
		return
	}
	if err := g.store.Set(ctx, key, string(payload), g.ttl); err != nil {
		g.logError(ctx, "persist idempotency record", err)
	}
}

func (g *idempotencyGuard) logError(ctx context.Context, msg string, err error) {
	if g.logg == nil {
		return
	}
	g.logg.Error(ctx, msg, err)
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(s.Status)
	if decoded, err := base64.StdEncoding.DecodeString(s.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
