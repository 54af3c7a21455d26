package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/BrightonDube/bizpilot-backend/api/responses"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
	pkgredis "github.com/BrightonDube/bizpilot-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// idempotencyRule guards one POST route. A rule matches either an exact
// pattern or a prefix/suffix pair that brackets a path parameter.
type idempotencyRule struct {
	exact  string
	prefix string
	suffix string
	ttl    time.Duration
}

func (rule idempotencyRule) matches(pattern string) bool {
	if rule.exact != "" {
		return pattern == rule.exact
	}
	return strings.HasPrefix(pattern, rule.prefix) && strings.HasSuffix(pattern, rule.suffix)
}

// Money-mutating routes hold their replay record for a week; the rest a
// day.
var idempotencyRules = []idempotencyRule{
	{exact: "/api/v1/laybys", ttl: defaultIdempotencyTTL},
	{prefix: "/api/v1/laybys/", suffix: "/extend", ttl: defaultIdempotencyTTL},
	{prefix: "/api/v1/laybys/", suffix: "/payments", ttl: criticalIdempotencyTTL},
	{prefix: "/api/v1/laybys/", suffix: "/cancel", ttl: criticalIdempotencyTTL},
	{prefix: "/api/v1/laybys/", suffix: "/collect", ttl: criticalIdempotencyTTL},
	{prefix: "/api/v1/payments/", suffix: "/refund", ttl: criticalIdempotencyTTL},
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if method != http.MethodPost || pattern == "" {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.matches(pattern) {
			return rule.ttl, true
		}
	}
	return 0, false
}

// storedReply is what a guarded route left behind in Redis the first
// time it ran. RequestHash lets us refuse a key that comes back with a
// different body.
type storedReply struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency makes guarded POST routes safe to retry. The first call
// runs the handler and stores its response under the caller's
// Idempotency-Key; later calls with the same key and body get the
// stored response back without running the handler again.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := routeTTL(r.Method, routePattern(r))
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if clientKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			g := idempotencyGuard{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(scopeFor(r), clientKey),
				hash:  base64.StdEncoding.EncodeToString(sum[:]),
				ttl:   ttl,
			}
			g.serve(w, r, next)
		})
	}
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
	key   string
	hash  string
	ttl   time.Duration
}

func (g idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	prior, err := g.lookup(r)
	if err != nil {
		responses.WriteError(r.Context(), g.logg, w, err)
		return
	}
	if prior != nil {
		g.replay(w, prior)
		return
	}

	rec := &replyRecorder{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(rec, r)
	g.save(r, rec)
}

// lookup returns the stored reply for this key, nil when the key is
// fresh, or an error the caller should surface to the client.
func (g idempotencyGuard) lookup(r *http.Request) (*storedReply, error) {
	raw, err := g.store.Get(r.Context(), g.key)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}

	var prior storedReply
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if prior.RequestHash != g.hash {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	return &prior, nil
}

func (g idempotencyGuard) replay(w http.ResponseWriter, prior *storedReply) {
	if prior.ContentType != "" {
		w.Header().Set("Content-Type", prior.ContentType)
	}
	w.WriteHeader(prior.Status)
	if decoded, err := base64.StdEncoding.DecodeString(prior.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

// save persists what the handler wrote. Failures here are logged, not
// surfaced: the client already has its response, the only cost is that
// a retry would re-run the handler.
func (g idempotencyGuard) save(r *http.Request, rec *replyRecorder) {
	reply := storedReply{
		Status:      rec.status,
		Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
		ContentType: rec.Header().Get("Content-Type"),
		RequestHash: g.hash,
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		g.logFailure(r, "marshal idempotency record", err)
		return
	}
	if _, err := g.store.SetNX(r.Context(), g.key, string(payload), g.ttl); err != nil {
		g.logFailure(r, "persist idempotency record", err)
	}
}

func (g idempotencyGuard) logFailure(r *http.Request, msg string, err error) {
	if g.logg != nil {
		g.logg.Error(r.Context(), msg, err)
	}
}

// scopeFor namespaces the client's key so tenants, actors, and routes
// cannot collide on a shared key value.
func scopeFor(r *http.Request) string {
	parts := []string{
		BusinessIDFromContext(r.Context()).String(),
		ActorIDFromContext(r.Context()).String(),
		r.Method,
		r.URL.Path,
	}
	return strings.Join(parts, "|")
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		// Inside a subrouter's middleware the pattern is still the
		// wildcard prefix; fall through to the raw path then.
		if pattern := ctx.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return strings.TrimSuffix(r.URL.Path, "/")
}

type replyRecorder struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *replyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *replyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
