package gateway

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"os"
	"slices"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
	"gopkg.in/yaml.v3"
)

// SandboxGateway serves partners from memory and evaluates query predicates
// with CEL. It stands in for the remote API in development and tests.
type SandboxGateway struct {
	partners []*domain.BusinessPartner
	apiKey   string
}

// NewSandboxGateway creates a sandbox over partners. When apiKey is set,
// requests without a matching apikey header are rejected with 401.
func NewSandboxGateway(partners []*domain.BusinessPartner, apiKey string) *SandboxGateway {
	return &SandboxGateway{partners: partners, apiKey: apiKey}
}

type fixtureFile struct {
	Partners []*domain.BusinessPartner `yaml:"partners"`
}

// LoadFixture reads partner records from a YAML file with a top-level
// partners list.
func LoadFixture(path string) ([]*domain.BusinessPartner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sandbox fixture: %w", err)
	}

	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sandbox fixture %s: %w", path, err)
	}
	for i, bp := range f.Partners {
		if bp == nil || bp.BusinessPartner == "" {
			return nil, fmt.Errorf("sandbox fixture %s: partner %d has no BusinessPartner id", path, i)
		}
	}
	return f.Partners, nil
}

// Send filters, orders and pages the in-memory partners.
func (g *SandboxGateway) Send(ctx context.Context, q *query.Select, headers map[string]string) ([]*domain.BusinessPartner, error) {
	if g.apiKey != "" && headers[domain.APIKeyHeader] != g.apiKey {
		return nil, &StatusError{StatusCode: http.StatusUnauthorized, Body: "invalid or missing API key"}
	}
	if q.From != domain.EntityBusinessPartners {
		return nil, fmt.Errorf("%w: partner API cannot serve %q", query.ErrInvalidQuery, q.From)
	}
	for _, c := range q.Columns {
		if c.IsExpand() {
			return nil, badRequest("property %q is not a navigation property", c.Name())
		}
	}

	matcher, err := query.CompileMatcher(q.Where)
	if err != nil {
		return nil, badRequest("%v", err)
	}

	out := []*domain.BusinessPartner{}
	for _, bp := range g.partners {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := matcher.Match(bp.Record())
		if err != nil {
			return nil, badRequest("%v", err)
		}
		if ok {
			out = append(out, bp)
		}
	}

	if err := sortPartners(out, q.OrderBy); err != nil {
		return nil, err
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []*domain.BusinessPartner{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func sortPartners(partners []*domain.BusinessPartner, orders []query.Order) error {
	if len(orders) == 0 {
		return nil
	}

	known := (&domain.BusinessPartner{}).Record()
	for _, o := range orders {
		if _, ok := known[o.Field]; !ok {
			return badRequest("property %q does not exist", o.Field)
		}
	}

	slices.SortStableFunc(partners, func(a, b *domain.BusinessPartner) int {
		ra, rb := a.Record(), b.Record()
		for _, o := range orders {
			c := cmp.Compare(fmt.Sprint(ra[o.Field]), fmt.Sprint(rb[o.Field]))
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

func badRequest(format string, args ...any) *StatusError {
	return &StatusError{StatusCode: http.StatusBadRequest, Body: fmt.Sprintf(format, args...)}
}

// DefaultPartners returns the built-in sandbox records.
func DefaultPartners() []*domain.BusinessPartner {
	return []*domain.BusinessPartner{
		{
			BusinessPartner:         "1000038",
			FirstName:               "Ada",
			LastName:                "Lovelace",
			BusinessPartnerFullName: "Ada Lovelace",
			Industry:                "Y001",
			CreationDate:            "/Date(1492041600000)/",
		},
		{
			BusinessPartner:         "1000039",
			FirstName:               "Grace",
			LastName:                "Hopper",
			BusinessPartnerFullName: "Grace Hopper",
			Industry:                "Y002",
			CreationDate:            "/Date(1492128000000)/",
		},
		{
			BusinessPartner:          "1000040",
			FirstName:                "Alan",
			LastName:                 "Turing",
			BusinessPartnerFullName:  "Alan Turing",
			BusinessPartnerIsBlocked: true,
			CreationDate:             "/Date(1492214400000)/",
		},
		{
			// Organisations carry no person name and are hidden from direct reads
			BusinessPartner:         "1000041",
			BusinessPartnerFullName: "Analytical Engines Ltd",
			Industry:                "Y003",
			CreationDate:            "/Date(1492300800000)/",
		},
	}
}
