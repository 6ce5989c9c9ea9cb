package dispatch

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"guard-gateway/middleware/ratelimit"
	"guard-gateway/resilience"

	"github.com/go-logr/logr"
)

const (
	headerRequestID = "X-Request-Id"
	// folga para o envelope em volta do payload
	envelopeSlack = 64 << 10
)

// BreakerRegistry expõe os breakers para as rotas administrativas.
type BreakerRegistry interface {
	Breaker(service string) *resilience.Breaker
	Snapshots() []resilience.Snapshot
	Reset(service string) bool
}

type HandlerOptions struct {
	Dispatcher *Dispatcher
	Breakers   BreakerRegistry
	Identity   ratelimit.IdentityFunc
	// MaxBodyBytes limita o corpo de /v1/process (0 = sem limite além do validador).
	MaxBodyBytes int64
	Logger       logr.Logger
	// AddRateLimitHeaders escreve X-RateLimit-* também nas respostas de sucesso.
	AddRateLimitHeaders bool
}

// Handler é a superfície HTTP do gateway.
type Handler struct {
	opts HandlerOptions
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.Identity == nil {
		opts.Identity = ratelimit.DefaultIdentityFunc("", false)
	}
	return &Handler{opts: opts}
}

// Register monta as rotas em mux. limit envolve as rotas de leitura e admin;
// /v1/process é limitado pelo próprio Dispatcher, depois da validação.
func (h *Handler) Register(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /v1/process", http.HandlerFunc(h.process))
	mux.Handle("GET /v1/services", limit(http.HandlerFunc(h.services)))
	mux.Handle("GET /admin/breakers", limit(http.HandlerFunc(h.breakers)))
	mux.Handle("POST /admin/breakers/{service}/reset", limit(http.HandlerFunc(h.resetBreaker)))
	mux.HandleFunc("GET /health", h.health)
}

type processRequest struct {
	ServiceType string         `json:"service_type"`
	Payload     map[string]any `json:"payload"`
	UserID      string         `json:"user_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
}

type errorBody struct {
	ErrorCode  string          `json:"error_code"`
	Message    string          `json:"message"`
	RequestID  string          `json:"request_id,omitempty"`
	RetryAfter int             `json:"retry_after,omitempty"`
	Upstream   json.RawMessage `json:"upstream,omitempty"`
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.Header.Get(headerRequestID))

	body := r.Body
	if h.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes+envelopeSlack)
	}
	var in processRequest
	dec := json.NewDecoder(body)
	// números ficam como json.Number para o payload chegar ao destino sem perder dígitos.
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			maxErr.Limit = h.opts.MaxBodyBytes
			h.writeError(w, requestID, maxErr)
			return
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		h.writeError(w, requestID, &BadRequestError{Err: err})
		return
	}
	if in.RequestID != "" {
		requestID = in.RequestID
	}

	st, err := ParseServiceType(in.ServiceType)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	req := NewRequest(st, in.Payload, in.UserID, in.SessionID, requestID)

	id := h.opts.Identity(r)
	resp, err := h.opts.Dispatcher.Process(r.Context(), Caller{
		Identity: id.Key,
		UserID:   id.UserID,
		IP:       id.IP,
		Method:   r.Method,
		Path:     ratelimit.RoutePath(r),
	}, req)
	if err != nil {
		var rl *RateLimitExceededError
		if errors.As(err, &rl) {
			ratelimit.WriteHeaders(w.Header(), rl.Decision)
		}
		h.writeError(w, req.RequestID, err)
		return
	}

	if h.opts.AddRateLimitHeaders {
		ratelimit.WriteHeaders(w.Header(), resp.RateLimit)
	}
	ct := resp.ContentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set(headerRequestID, resp.RequestID)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

type serviceInfo struct {
	ServiceType string `json:"service_type"`
	Path        string `json:"path"`
	Breaker     string `json:"breaker"`
}

func (h *Handler) services(w http.ResponseWriter, _ *http.Request) {
	out := make([]serviceInfo, 0, len(ServiceTypes))
	for _, t := range ServiceTypes {
		path, _ := Resolve(t)
		info := serviceInfo{ServiceType: string(t), Path: path, Breaker: resilience.StateClosed.String()}
		if h.opts.Breakers != nil {
			info.Breaker = h.opts.Breakers.Breaker(string(t)).State().String()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": out})
}

func (h *Handler) breakers(w http.ResponseWriter, _ *http.Request) {
	snaps := []resilience.Snapshot{}
	if h.opts.Breakers != nil {
		snaps = h.opts.Breakers.Snapshots()
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": snaps})
}

func (h *Handler) resetBreaker(w http.ResponseWriter, r *http.Request) {
	st, err := ParseServiceType(r.PathValue("service"))
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	if h.opts.Breakers == nil {
		writeJSON(w, http.StatusOK, resilience.Snapshot{Service: string(st), State: resilience.StateClosed.String()})
		return
	}
	if h.opts.Breakers.Reset(string(st)) {
		h.opts.Logger.Info("circuit breaker reset", "service", st)
	}
	writeJSON(w, http.StatusOK, h.opts.Breakers.Breaker(string(st)).Snapshot())
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, requestID string, err error) {
	f := Classify(err)
	if f.HTTPStatus >= http.StatusInternalServerError && f.Code == CodeInternal {
		h.opts.Logger.Error(err, "dispatch internal error", "requestID", requestID)
	}
	if requestID != "" {
		w.Header().Set(headerRequestID, requestID)
	}
	retryAfter := ratelimit.RetryAfterSeconds(f.RetryAfter)
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSON(w, f.HTTPStatus, errorBody{
		ErrorCode:  f.Code,
		Message:    f.Message,
		RequestID:  requestID,
		RetryAfter: retryAfter,
		Upstream:   f.Upstream,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
