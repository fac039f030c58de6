package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity names exposed by the risk service.
const (
	EntityRisks            = "Risks"
	EntityBusinessPartners = "BusinessPartners"
)

// Risk field and association names as they appear in queries and responses.
const (
	RiskFieldID              = "ID"
	RiskFieldImpact          = "impact"
	RiskFieldPrioCode        = "prio_code"
	RiskFieldPartnerKey      = "bp_BusinessPartner"
	RiskFieldCriticality     = "criticality"
	RiskFieldPrioCriticality = "PrioCriticality"

	// RiskAssocPartner is the association from a risk to its business partner.
	// The partner lives in a different system, so it can never be joined by the store.
	RiskAssocPartner = "bp"
)

// Priority codes a risk may carry.
const (
	PriorityHigh   = "H"
	PriorityMedium = "M"
	PriorityLow    = "L"
)

// Criticality tiers used by UI annotations.
const (
	CriticalityNegative = 1
	CriticalityCritical = 2
	CriticalityPositive = 3
)

// Risk is a risk record owned by the local store.
// Criticality and PrioCriticality are derived on every read and never persisted.
type Risk struct {
	ID                string           `json:"ID"`
	Title             string           `json:"title,omitempty"`
	Owner             string           `json:"owner,omitempty"`
	Descr             string           `json:"descr,omitempty"`
	PrioCode          string           `json:"prio_code,omitempty"`
	Impact            *decimal.Decimal `json:"impact,omitempty"`
	BusinessPartnerID string           `json:"bp_BusinessPartner,omitempty"`
	CreatedAt         *time.Time       `json:"createdAt,omitempty"`
	ModifiedAt        *time.Time       `json:"modifiedAt,omitempty"`

	Criticality     int              `json:"criticality"`
	PrioCriticality *int             `json:"PrioCriticality,omitempty"`
	BusinessPartner *BusinessPartner `json:"bp,omitempty"`
}
