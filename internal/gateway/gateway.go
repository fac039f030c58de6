// Package gateway provides clients for the remote business partner API.
//
// Every implementation satisfies domain.PartnerGateway: it takes a structured
// query plus the request headers and returns the matching partner records.
package gateway

import (
	"fmt"
	"log/slog"

	"github.com/opensource-finance/riskservice/internal/domain"
)

// RemoteEntitySet is the entity set the partner API serves partners from.
const RemoteEntitySet = "A_BusinessPartner"

// StatusError is returned when the partner API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("partner API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("partner API returned status %d: %s", e.StatusCode, e.Body)
}

// New builds the configured gateway. When response caching is enabled and a
// cache is available, reads go through it. The result is always instrumented.
func New(cfg domain.GatewayConfig, cache domain.Cache, logger *slog.Logger) (domain.PartnerGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		base domain.PartnerGateway
		kind string
	)
	switch cfg.Type {
	case "odata":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("gateway.base_url is required for the odata gateway")
		}
		base, kind = NewODataGateway(cfg.BaseURL, cfg.Timeout), "odata"

	case "sandbox", "":
		partners := DefaultPartners()
		if cfg.SandboxFixture != "" {
			loaded, err := LoadFixture(cfg.SandboxFixture)
			if err != nil {
				return nil, err
			}
			partners = loaded
		}
		base, kind = NewSandboxGateway(partners, cfg.APIKey), "sandbox"

	default:
		return nil, fmt.Errorf("unsupported gateway type: %s", cfg.Type)
	}

	if cfg.CacheEnabled && cache != nil {
		base = NewCachedGateway(base, cache, cfg.CacheTTL, logger)
		logger.Info("partner response cache enabled", "ttl", cfg.CacheTTL.String())
	}

	return Instrument(base, kind), nil
}
