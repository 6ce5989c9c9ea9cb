package application

import (
	"net/http"
	"strings"
	"time"

	"guard-gateway/middleware/ratelimit/domain"
)

// EndpointClass agrupa endpoints com o mesmo limite padrão.
type EndpointClass string

const (
	ClassProcessing EndpointClass = "processing"
	ClassAdmin      EndpointClass = "admin"
	ClassRead       EndpointClass = "read"
)

// Classifier deriva a classe a partir de method+path.
//
// Regras, na ordem:
//  1. path sob algum AdminPrefixes => admin
//  2. GET/HEAD/OPTIONS => read
//  3. qualquer outro método => processing
type Classifier struct {
	AdminPrefixes []string
}

func DefaultClassifier() Classifier {
	return Classifier{AdminPrefixes: []string{"/admin"}}
}

func (c Classifier) Classify(method, path string) EndpointClass {
	for _, p := range c.AdminPrefixes {
		p = strings.TrimRight(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return ClassAdmin
		}
	}
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassProcessing
	}
}

// Limits reúne todos os limites configurados.
type Limits struct {
	Global domain.Rule
	Hourly domain.Rule
	Burst  domain.Rule

	Classes map[EndpointClass]domain.Rule
	// Endpoints tem precedência sobre Classes. A chave é "METHOD /path" ou só "/path".
	Endpoints map[string]domain.Rule

	// Users e IPs só se aplicam quando há entrada para aquela identidade.
	Users map[string]domain.Rule
	IPs   map[string]domain.Rule
}

// DefaultLimits devolve os limites padrão do gateway.
func DefaultLimits() Limits {
	return Limits{
		Global: domain.Rule{Limit: 100, Window: 60 * time.Second},
		Hourly: domain.Rule{Limit: 1000, Window: time.Hour},
		Burst:  domain.Rule{Limit: 20, Window: 10 * time.Second},
		Classes: map[EndpointClass]domain.Rule{
			ClassProcessing: {Limit: 100, Window: time.Minute},
			ClassAdmin:      {Limit: 5, Window: time.Minute},
			ClassRead:       {Limit: 200, Window: time.Minute},
		},
	}
}

// endpointRule resolve o limite do endpoint: override explícito ou padrão da classe.
func (l Limits) endpointRule(method, path string, class EndpointClass) domain.Rule {
	if r, ok := l.Endpoints[strings.ToUpper(method)+" "+path]; ok {
		return r
	}
	if r, ok := l.Endpoints[path]; ok {
		return r
	}
	return l.Classes[class]
}
