package domain

// BusinessPartner field names used in remote queries.
const (
	PartnerFieldID        = "BusinessPartner"
	PartnerFieldFirstName = "FirstName"
	PartnerFieldLastName  = "LastName"
)

// APIKeyHeader is the header the business partner API expects its key in.
const APIKeyHeader = "apikey"

// BusinessPartner is a read-only record served by the remote partner API.
// Field names follow the A_BusinessPartner entity of API_BUSINESS_PARTNER.
type BusinessPartner struct {
	BusinessPartner          string `json:"BusinessPartner" yaml:"BusinessPartner"`
	FirstName                string `json:"FirstName" yaml:"FirstName"`
	LastName                 string `json:"LastName" yaml:"LastName"`
	BusinessPartnerFullName  string `json:"BusinessPartnerFullName,omitempty" yaml:"BusinessPartnerFullName"`
	BusinessPartnerIsBlocked bool   `json:"BusinessPartnerIsBlocked,omitempty" yaml:"BusinessPartnerIsBlocked"`
	Industry                 string `json:"Industry,omitempty" yaml:"Industry"`
	CreationDate             string `json:"CreationDate,omitempty" yaml:"CreationDate"`
}

// Record returns the partner as a field map, keyed by the remote field names.
func (bp *BusinessPartner) Record() map[string]any {
	return map[string]any{
		"BusinessPartner":          bp.BusinessPartner,
		"FirstName":                bp.FirstName,
		"LastName":                 bp.LastName,
		"BusinessPartnerFullName":  bp.BusinessPartnerFullName,
		"BusinessPartnerIsBlocked": bp.BusinessPartnerIsBlocked,
		"Industry":                 bp.Industry,
		"CreationDate":             bp.CreationDate,
	}
}
