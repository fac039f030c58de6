package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
)

// cacheNamespace scopes partner responses in the shared cache.
const cacheNamespace = "partners"

// CachedGateway is a read-through cache in front of another gateway.
// Cache failures are logged and the request goes to the delegate.
type CachedGateway struct {
	next   domain.PartnerGateway
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedGateway wraps next. A zero ttl defaults to one minute.
func NewCachedGateway(next domain.PartnerGateway, cache domain.Cache, ttl time.Duration, logger *slog.Logger) *CachedGateway {
	if ttl == 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGateway{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "partner-cache"),
	}
}

// Send answers from the cache when possible.
func (g *CachedGateway) Send(ctx context.Context, q *query.Select, headers map[string]string) ([]*domain.BusinessPartner, error) {
	key, err := cacheKey(q)
	if err != nil {
		return nil, err
	}

	if data, err := g.cache.Get(ctx, cacheNamespace, key); err != nil {
		g.logger.Warn("cache read failed", "error", err)
	} else if data != nil {
		var partners []*domain.BusinessPartner
		if err := json.Unmarshal(data, &partners); err == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return partners, nil
		}
		g.logger.Warn("dropping undecodable cache entry", "key", key)
		_ = g.cache.Delete(ctx, cacheNamespace, key)
	}
	cacheLookups.WithLabelValues("miss").Inc()

	partners, err := g.next.Send(ctx, q, headers)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(partners); err == nil {
		if err := g.cache.Set(ctx, cacheNamespace, key, data, g.ttl); err != nil {
			g.logger.Warn("cache write failed", "error", err)
		}
	}
	return partners, nil
}

// cacheKey hashes the rendered query so equal requests share an entry.
func cacheKey(q *query.Select) (string, error) {
	params, err := q.Values()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(q.From + "?" + params.Encode()))
	return hex.EncodeToString(sum[:]), nil
}
