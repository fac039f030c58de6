package service

import (
	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/shopspring/decimal"
)

// highImpact is the impact from which a risk is flagged as negative.
var highImpact = decimal.NewFromInt(100000)

// Annotate sets the derived UI fields on each risk.
//
// criticality is 1 for an impact of at least 100000 and 2 otherwise,
// including when impact was not read. PrioCriticality follows the priority
// code (H 1, M 2, L 3) and is cleared for any other code.
func Annotate(risks ...*domain.Risk) {
	for _, r := range risks {
		if r == nil {
			continue
		}

		if r.Impact != nil && r.Impact.GreaterThanOrEqual(highImpact) {
			r.Criticality = domain.CriticalityNegative
		} else {
			r.Criticality = domain.CriticalityCritical
		}

		r.PrioCriticality = prioCriticality(r.PrioCode)
	}
}

func prioCriticality(code string) *int {
	var v int
	switch code {
	case domain.PriorityHigh:
		v = domain.CriticalityNegative
	case domain.PriorityMedium:
		v = domain.CriticalityCritical
	case domain.PriorityLow:
		v = domain.CriticalityPositive
	default:
		return nil
	}
	return &v
}
