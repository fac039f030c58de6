package service

import (
	"context"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
)

// ReadBusinessPartners forwards a direct partner read to the gateway.
// Partners without a first or last name are filtered out remotely; the
// gateway result is returned as-is.
func (s *Service) ReadBusinessPartners(ctx context.Context, q *query.Select) ([]*domain.BusinessPartner, error) {
	remote := q.Clone().And(
		query.Ne(domain.PartnerFieldLastName, ""),
		query.Ne(domain.PartnerFieldFirstName, ""),
	)
	return s.partners.Send(ctx, remote, s.headers())
}
