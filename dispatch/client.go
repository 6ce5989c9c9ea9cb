package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBackendTimeout = 30 * time.Second
	maxResponseBytes      = 10 << 20
)

// ErrResponseTooLarge indica um corpo de resposta acima do teto do client.
var ErrResponseTooLarge = errors.New("backend response too large")

// BackendResponse é a resposta 2xx do destino, repassada sem alteração.
type BackendResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Backend faz uma única tentativa de POST; retry e breaker ficam no Executor.
type Backend interface {
	Post(ctx context.Context, t ServiceType, path string, body []byte) (*BackendResponse, error)
}

// HTTPBackend envia o payload como JSON para a URL base de cada serviço.
type HTTPBackend struct {
	baseURLs map[ServiceType]string
	client   *http.Client
	timeout  time.Duration
	maxBody  int64
}

type BackendOption func(*HTTPBackend)

// WithHTTPClient troca o client (ex: transport com TLS próprio).
func WithHTTPClient(c *http.Client) BackendOption {
	return func(b *HTTPBackend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithBackendTimeout limita cada tentativa.
func WithBackendTimeout(d time.Duration) BackendOption {
	return func(b *HTTPBackend) { b.timeout = d }
}

// WithMaxResponseBytes troca o teto do corpo de resposta (padrão 10 MiB).
func WithMaxResponseBytes(n int64) BackendOption {
	return func(b *HTTPBackend) {
		if n > 0 {
			b.maxBody = n
		}
	}
}

func NewHTTPBackend(baseURLs map[ServiceType]string, opts ...BackendOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURLs: make(map[ServiceType]string, len(baseURLs)),
		client:   &http.Client{},
		timeout:  DefaultBackendTimeout,
		maxBody:  maxResponseBytes,
	}
	for t, u := range baseURLs {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			b.baseURLs[t] = u
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Configured informa se há URL para o serviço.
func (b *HTTPBackend) Configured(t ServiceType) bool {
	_, ok := b.baseURLs[t]
	return ok
}

func (b *HTTPBackend) Post(ctx context.Context, t ServiceType, path string, body []byte) (*BackendResponse, error) {
	base, ok := b.baseURLs[t]
	if !ok {
		return nil, &UnsupportedServiceTypeError{Value: string(t), Reason: "no backend configured"}
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", t, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", t, err)
	}
	defer resp.Body.Close()

	// lê um byte a mais para distinguir "cabe no teto" de "foi cortado".
	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", t, err)
	}
	if int64(len(data)) > b.maxBody {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", t, ErrResponseTooLarge, b.maxBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Service: t, Status: resp.StatusCode, Body: data}
	}
	return &BackendResponse{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: data}, nil
}
