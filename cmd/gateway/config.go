package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"guard-gateway/dispatch"
	"guard-gateway/middleware/ratelimit/application"
	"guard-gateway/middleware/ratelimit/domain"
	"guard-gateway/middleware/threat"
	"guard-gateway/resilience"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type config struct {
	listenAddr string
	configFile string

	rateEnabled bool
	limits      application.Limits
	trustXFF    bool
	userHeader  string
	addHeaders  bool

	redisAddr     string
	redisPassword string
	redisDB       int
	redisTimeout  time.Duration

	breaker        resilience.BreakerOptions
	retry          resilience.RetryPolicy
	backendTimeout time.Duration
	backends       map[dispatch.ServiceType]string

	threat threat.Config

	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool

	logLevel       string
	logDevelopment bool
}

// fileConfig é o YAML opcional: tabelas que não cabem bem em variáveis de ambiente.
//
//	backends:
//	  TOKEN_GUARD: http://token-guard:8000
//	endpoints:
//	  "POST /v1/process": {limit: 50, window: 60s}
//	users:
//	  alice: {limit: 500, window: 1m}
//	ips:
//	  203.0.113.9: {limit: 10, window: 1m}
//	allowed_path_prefixes: [/var/log/app]
type fileConfig struct {
	Backends            map[string]string   `yaml:"backends"`
	Endpoints           map[string]ruleSpec `yaml:"endpoints"`
	Users               map[string]ruleSpec `yaml:"users"`
	IPs                 map[string]ruleSpec `yaml:"ips"`
	AllowedPathPrefixes []string            `yaml:"allowed_path_prefixes"`
}

type ruleSpec struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

func (r ruleSpec) rule() domain.Rule {
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	return domain.Rule{Limit: r.Limit, Window: r.Window}
}

var backendEnv = map[dispatch.ServiceType]string{
	dispatch.TokenGuard:   "TOKEN_GUARD_URL",
	dispatch.TrustGuard:   "TRUST_GUARD_URL",
	dispatch.ContextGuard: "CONTEXT_GUARD_URL",
	dispatch.BiasGuard:    "BIAS_GUARD_URL",
	dispatch.HealthGuard:  "HEALTH_GUARD_URL",
}

func readConfig(args []string) (config, error) {
	fs := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	configFile := fs.String("config", os.Getenv("CONFIG_FILE"), "YAML file with backends and rate-limit override tables")
	listen := fs.String("listen", "", "listen address (overrides LISTEN_ADDR)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg := config{configFile: *configFile}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	if *listen != "" {
		cfg.listenAddr = *listen
	}

	cfg.rateEnabled = getenvBoolDefault("RATE_LIMIT_ENABLED", true)
	def := application.DefaultLimits()
	cfg.limits = application.Limits{
		Global: domain.Rule{
			Limit:  getenvIntDefault("RATE_LIMIT_REQUESTS", def.Global.Limit),
			Window: getenvSecondsDefault("RATE_LIMIT_WINDOW", def.Global.Window),
		},
		Hourly: domain.Rule{Limit: getenvIntDefault("RATE_LIMIT_HOURLY", def.Hourly.Limit), Window: time.Hour},
		Burst: domain.Rule{
			Limit:  getenvIntDefault("RATE_LIMIT_BURST", def.Burst.Limit),
			Window: getenvSecondsDefault("RATE_LIMIT_BURST_WINDOW", def.Burst.Window),
		},
		Classes: map[application.EndpointClass]domain.Rule{
			application.ClassProcessing: {Limit: getenvIntDefault("RATE_LIMIT_PROCESSING", def.Classes[application.ClassProcessing].Limit), Window: time.Minute},
			application.ClassAdmin:      {Limit: getenvIntDefault("RATE_LIMIT_ADMIN", def.Classes[application.ClassAdmin].Limit), Window: time.Minute},
			application.ClassRead:       {Limit: getenvIntDefault("RATE_LIMIT_READ", def.Classes[application.ClassRead].Limit), Window: time.Minute},
		},
	}
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", true)
	// vazio por padrão: o header só vale atrás de um proxy de autenticação que o sobrescreve.
	cfg.userHeader = getenvDefault("USER_HEADER", "")
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)

	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.redisTimeout = getenvDurationDefault("REDIS_TIMEOUT", 5*time.Second)

	cfg.breaker = resilience.BreakerOptions{
		FailureThreshold: getenvIntDefault("CIRCUIT_BREAKER_THRESHOLD", 5),
		Cooldown:         getenvSecondsDefault("CIRCUIT_BREAKER_COOLDOWN", 30*time.Second),
	}
	cfg.retry = resilience.DefaultRetryPolicy()
	cfg.retry.MaxAttempts = getenvIntDefault("RETRY_ATTEMPTS", cfg.retry.MaxAttempts)
	cfg.retry.InitialBackoff = getenvDurationDefault("RETRY_BACKOFF", cfg.retry.InitialBackoff)
	cfg.retry.MaxBackoff = getenvDurationDefault("RETRY_MAX_BACKOFF", cfg.retry.MaxBackoff)
	cfg.backendTimeout = getenvDurationDefault("BACKEND_TIMEOUT", dispatch.DefaultBackendTimeout)

	cfg.threat = threat.DefaultConfig()
	cfg.threat.MaxPayloadBytes = getenvIntDefault("MAX_PAYLOAD_SIZE", threat.DefaultMaxPayloadBytes)
	cfg.threat.MaxDepth = getenvIntDefault("MAX_NESTING_DEPTH", threat.DefaultMaxDepth)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logDevelopment = getenvBoolDefault("LOG_DEVELOPMENT", false)

	cfg.backends = map[dispatch.ServiceType]string{}
	if cfg.configFile != "" {
		if err := cfg.applyFile(cfg.configFile); err != nil {
			return config{}, err
		}
	}
	// env tem precedência sobre o arquivo
	for st, k := range backendEnv {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			cfg.backends[st] = v
		}
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	var errs error
	for name, u := range fc.Backends {
		st, err := dispatch.ParseServiceType(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("backends: %w", err))
			continue
		}
		c.backends[st] = u
	}
	c.limits.Endpoints = toRules(fc.Endpoints)
	c.limits.Users = toRules(fc.Users)
	c.limits.IPs = toRules(fc.IPs)
	c.threat.AllowedPathPrefixes = fc.AllowedPathPrefixes
	return errs
}

func toRules(in map[string]ruleSpec) map[string]domain.Rule {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]domain.Rule, len(in))
	for k, r := range in {
		out[k] = r.rule()
	}
	return out
}

// validate junta todos os problemas em vez de parar no primeiro.
func (c config) validate() error {
	var errs error
	check := func(ok bool, msg string) {
		if !ok {
			errs = multierr.Append(errs, errors.New(msg))
		}
	}

	check(c.limits.Global.Limit >= 0, "RATE_LIMIT_REQUESTS must be >= 0")
	check(c.limits.Global.Window > 0, "RATE_LIMIT_WINDOW must be > 0")
	check(c.limits.Burst.Window > 0, "RATE_LIMIT_BURST_WINDOW must be > 0")
	for class, r := range c.limits.Classes {
		check(r.Limit >= 0, fmt.Sprintf("rate limit for %s endpoints must be >= 0", class))
	}
	for k, r := range c.limits.Endpoints {
		check(r.Limit > 0, fmt.Sprintf("endpoint override %q: limit must be > 0", k))
	}
	check(c.breaker.FailureThreshold > 0, "CIRCUIT_BREAKER_THRESHOLD must be > 0")
	check(c.breaker.Cooldown > 0, "CIRCUIT_BREAKER_COOLDOWN must be > 0")
	check(c.retry.MaxAttempts > 0, "RETRY_ATTEMPTS must be > 0")
	check(c.backendTimeout > 0, "BACKEND_TIMEOUT must be > 0")
	check(c.redisTimeout > 0, "REDIS_TIMEOUT must be > 0")
	check(c.threat.MaxPayloadBytes > 0, "MAX_PAYLOAD_SIZE must be > 0")
	check(c.threat.MaxDepth > 0, "MAX_NESTING_DEPTH must be > 0")
	check(c.concurrencyMax >= 0, "CONCURRENCY_MAX must be >= 0")
	check(len(c.backends) > 0, "at least one backend URL is required (TOKEN_GUARD_URL, ... or backends: in the config file)")
	return errs
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// getenvSecondsDefault aceita "60" (segundos) ou uma duração ("1m").
func getenvSecondsDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return getenvDurationDefault(k, def)
}
