package service

import (
	"context"
	"fmt"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
)

// PostStep runs on the store result before it is annotated.
type PostStep func(ctx context.Context, risks []*domain.Risk) error

// RemovePartnerExpand drops the first expand on the partner association and
// makes sure the foreign key is still selected. It reports whether an
// expand was removed. Only the first expand is touched.
func RemovePartnerExpand(q *query.Select) bool {
	if len(q.Columns) == 0 {
		return false
	}
	i := q.FindExpand(domain.RiskAssocPartner)
	if i < 0 {
		return false
	}

	q.RemoveColumn(i)
	if !q.HasRef(domain.RiskFieldPartnerKey) {
		q.AddColumn(domain.RiskFieldPartnerKey)
	}
	return true
}

// RewriteRiskQuery prepares q for the local store, modifying it in place.
// When q expands the partner association the returned step fills in each
// risk's partner from the remote API; otherwise it returns nil.
func (s *Service) RewriteRiskQuery(q *query.Select) PostStep {
	if !RemovePartnerExpand(q) {
		return nil
	}
	return s.joinPartners
}

// joinPartners looks up every referenced partner in one remote call and
// attaches it to the risks that reference it.
func (s *Service) joinPartners(ctx context.Context, risks []*domain.Risk) error {
	keys := partnerKeys(risks)
	if len(keys) == 0 {
		return nil
	}

	lookup := query.From(domain.EntityBusinessPartners).And(query.In(domain.PartnerFieldID, keys...))
	partners, err := s.partners.Send(ctx, lookup, s.headers())
	if err != nil {
		return err
	}

	byID := make(map[string]*domain.BusinessPartner, len(partners))
	for _, bp := range partners {
		byID[bp.BusinessPartner] = bp
	}
	for _, r := range risks {
		r.BusinessPartner = byID[r.BusinessPartnerID]
	}

	s.logger.Debug("joined business partners",
		"risks", len(risks),
		"keys", len(keys),
		"partners", len(partners),
	)
	return nil
}

// partnerKeys returns the distinct non-empty foreign keys in result order.
func partnerKeys(risks []*domain.Risk) []any {
	seen := make(map[string]bool, len(risks))
	keys := make([]any, 0, len(risks))
	for _, r := range risks {
		id := r.BusinessPartnerID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, id)
	}
	return keys
}

// ReadRisks runs a collection read: rewrite, execute, join, annotate.
// The caller's query is not modified.
func (s *Service) ReadRisks(ctx context.Context, q *query.Select) ([]*domain.Risk, error) {
	local := q.Clone()
	local.From = domain.EntityRisks
	return s.read(ctx, local)
}

// ReadRisk reads a single risk by ID. q supplies the projection and may be nil.
func (s *Service) ReadRisk(ctx context.Context, id string, q *query.Select) (*domain.Risk, error) {
	local := query.From(domain.EntityRisks)
	if q != nil {
		local.Columns = q.Clone().Columns
	}
	local.And(query.Eq(domain.RiskFieldID, id))
	local.Limit = 1

	risks, err := s.read(ctx, local)
	if err != nil {
		return nil, err
	}
	if len(risks) == 0 {
		return nil, fmt.Errorf("risk %s: %w", id, domain.ErrNotFound)
	}
	return risks[0], nil
}

func (s *Service) read(ctx context.Context, q *query.Select) ([]*domain.Risk, error) {
	post := s.RewriteRiskQuery(q)

	risks, err := s.store.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	if post != nil {
		if err := post(ctx, risks); err != nil {
			return nil, err
		}
	}

	Annotate(risks...)
	return risks, nil
}
