package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type userKey struct{}

// WithUser marca o contexto com o usuário autenticado (ex: por um middleware de auth).
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext devolve o usuário autenticado, se houver.
func UserFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userKey{}).(string)
	return v, ok && v != ""
}

// Identity é o resultado da resolução de identidade de uma requisição.
type Identity struct {
	// Key é a identidade usada nos tiers por identidade.
	Key    string
	UserID string
	IP     string
}

type IdentityFunc func(r *http.Request) Identity

// DefaultIdentityFunc resolve a identidade na ordem:
//  1. usuário autenticado no contexto
//  2. header de usuário confiável (preenchido pelo proxy de autenticação), se configurado
//  3. primeiro IP do X-Forwarded-For (se trustXFF)
//  4. host do RemoteAddr
func DefaultIdentityFunc(userHeader string, trustXFF bool) IdentityFunc {
	return func(r *http.Request) Identity {
		id := Identity{IP: clientIP(r, trustXFF)}

		if u, ok := UserFromContext(r.Context()); ok {
			id.UserID = u
		} else if userHeader != "" {
			id.UserID = strings.TrimSpace(r.Header.Get(userHeader))
		}

		id.Key = id.IP
		if id.UserID != "" {
			id.Key = "user:" + id.UserID
		}
		return id
	}
}

func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// RoutePath devolve o path do padrão roteado (ex: "/admin/breakers/{service}/reset")
// quando disponível, para manter a cardinalidade das chaves estável.
func RoutePath(r *http.Request) string {
	if p := r.Pattern; p != "" {
		if _, rest, ok := strings.Cut(p, " "); ok {
			p = rest
		}
		if i := strings.Index(p, "/"); i >= 0 {
			return p[i:]
		}
	}
	return r.URL.Path
}
