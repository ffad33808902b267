// Package policy is the client for the external policy evaluation service
// that gates every mutating route.
package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"portal-service/internal/common/config"
	"portal-service/internal/common/database"
	apperrors "portal-service/internal/common/errors"
	httpclient "portal-service/internal/common/http"
	"portal-service/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const (
	DecisionPermit = "PERMIT"
	DecisionDeny   = "DENY"

	evaluatePath = "/policy/evaluate"
	cachePrefix  = "policy:decision:"
)

// Decision is the evaluation service's answer.
type Decision struct {
	Success  bool   `json:"success"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

func (d Decision) Allowed() bool {
	return d.Success && strings.EqualFold(d.Decision, DecisionPermit)
}

type Request struct {
	Token    string                 `json:"token"`
	Resource string                 `json:"resource"`
	Action   string                 `json:"action"`
	Context  map[string]interface{} `json:"context"`
}

// Evaluator answers whether a bearer may perform action on resource.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
}

type Client struct {
	baseURL string
	http    *httpclient.Client
	cache   *database.RedisClient
	ttl     time.Duration
	logger  logger.Logger
}

// NewClient builds the service client. cache may be nil, in which case every
// call goes to the service.
func NewClient(cfg config.PolicyConfig, cache *database.RedisClient, log logger.Logger) *Client {
	log = log.WithFields(map[string]interface{}{"component": "policy"})
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http: httpclient.NewClient(httpclient.Options{
			Timeout: config.GetDuration(cfg.Timeout),
			Retries: cfg.Retries,
			Backoff: config.GetDuration(cfg.Backoff),
		}, log),
		cache:  cache,
		ttl:    config.GetDuration(cfg.CacheTTL),
		logger: log,
	}
}

// Evaluate fails closed: any transport failure yields a DENY decision and a
// policy-unavailable error.
func (c *Client) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if req.Context == nil {
		req.Context = map[string]interface{}{}
	}
	key := cacheKey(req)

	if cached, ok := c.lookup(ctx, key); ok {
		return cached, nil
	}

	var decision Decision
	if err := c.http.PostJSON(ctx, c.baseURL+evaluatePath, nil, req, &decision); err != nil {
		c.logger.Error("policy evaluation failed", map[string]interface{}{
			"resource": req.Resource,
			"action":   req.Action,
			"error":    err.Error(),
		})
		return Decision{Decision: DecisionDeny, Reason: "NETWORK_ERROR"}, apperrors.NewPolicyUnavailableError(err)
	}

	if decision.Success {
		c.store(ctx, key, decision)
	}
	return decision, nil
}

func (c *Client) lookup(ctx context.Context, key string) (Decision, bool) {
	if c.cache == nil || c.ttl <= 0 {
		return Decision{}, false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("policy cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return Decision{}, false
	}
	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Decision{}, false
	}
	return d, true
}

func (c *Client) store(ctx context.Context, key string, d Decision) {
	if c.cache == nil || c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("policy cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// cacheKey hashes the full request so raw tokens never land in Redis.
func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Token))
	h.Write([]byte{0})
	h.Write([]byte(req.Resource))
	h.Write([]byte{0})
	h.Write([]byte(req.Action))
	h.Write([]byte{0})
	ctxJSON, _ := json.Marshal(req.Context)
	h.Write(ctxJSON)
	return cachePrefix + hex.EncodeToString(h.Sum(nil))
}

// AllowAll permits everything. Used when the gate is disabled in config.
type AllowAll struct{}

func (AllowAll) Evaluate(context.Context, Request) (Decision, error) {
	return Decision{Success: true, Decision: DecisionPermit, Reason: "POLICY_DISABLED"}, nil
}
