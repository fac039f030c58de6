// Package service implements the read handlers of the risk service.
//
// Risk reads run an explicit pipeline: the query is rewritten, executed
// against the local store, enriched with business partners from the remote
// API and finally annotated. Partner reads are filtered and forwarded.
package service

import (
	"log/slog"

	"github.com/opensource-finance/riskservice/internal/domain"
)

// Service holds the collaborators shared by every request.
// It keeps no per-request state and is safe for concurrent use.
type Service struct {
	store    domain.RiskRepository
	partners domain.PartnerGateway
	apiKey   string
	logger   *slog.Logger
}

// New creates a service. apiKey is sent to the partner API on every call
// and is never validated here.
func New(store domain.RiskRepository, partners domain.PartnerGateway, apiKey string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		partners: partners,
		apiKey:   apiKey,
		logger:   logger.With("component", "service"),
	}
}

// headers returns a fresh header map for one gateway call.
func (s *Service) headers() map[string]string {
	return map[string]string{domain.APIKeyHeader: s.apiKey}
}
