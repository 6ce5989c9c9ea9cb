package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"guard-gateway/middleware/ratelimit/domain"
	"guard-gateway/middleware/ratelimit/infra"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
)

type brokenReader struct{}

func (brokenReader) Summary(context.Context) (domain.StatsSummary, error) {
	return domain.StatsSummary{}, errors.New("redis: connection refused")
}

func TestStatsHandler(t *testing.T) {
	ms := infra.NewMemoryStatsStore()
	_ = ms.Record(context.Background(), domain.StatsEvent{Allowed: false, Tier: "burst"})

	rec := httptest.NewRecorder()
	statsHandler(ms, testr.New(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ratelimit/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":0,"denied":1,"degraded":0,"denied_by_tier":{"burst":1}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	statsHandler(brokenReader{}, testr.New(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ratelimit/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
