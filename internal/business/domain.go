package business

import (
	"regexp"
	"strings"
	"time"
)

// Defaults applied when a record leaves the field blank.
const (
	DefaultSalesOffice  = "기본"
	DefaultManufacturer = "ecosense"
)

// Record is a facility row from business_info.
type Record struct {
	ID                        string     `json:"id"`
	Name                      string     `json:"business_name"`
	Address                   string     `json:"address"`
	Manufacturer              string     `json:"manufacturer"`
	SalesOffice               string     `json:"sales_office"`
	ProgressStatus            string     `json:"progress_status"`
	InstallationDate          *time.Time `json:"installation_date"`
	CompletionSurveyDate      *time.Time `json:"completion_survey_date"`
	EstimateSurveyDate        *time.Time `json:"estimate_survey_date"`
	PreConstructionSurveyDate *time.Time `json:"pre_construction_survey_date"`
	AdditionalCost            float64    `json:"additional_cost"`
	Negotiation               float64    `json:"negotiation"`
	InstallationExtraCost     float64    `json:"installation_extra_cost"`
	Equipment                 Equipment  `json:"equipment"`
}

// SalesOfficeOrDefault returns the sales office, falling back to the shared default.
func (r Record) SalesOfficeOrDefault() string {
	if s := strings.TrimSpace(r.SalesOffice); s != "" {
		return s
	}
	return DefaultSalesOffice
}

// ManufacturerCode returns the pricing code of the record's manufacturer.
func (r Record) ManufacturerCode() string {
	return ManufacturerCode(r.Manufacturer)
}

// Region returns the leading administrative region of the address.
func (r Record) Region() string {
	return ExtractRegion(r.Address)
}

var manufacturerCodes = map[string]string{
	"에코센스":    "ecosense",
	"크린어스":    "cleanearth",
	"가이아씨앤에스": "gaia_cns",
	"이브이에스":   "evs",
}

// ManufacturerCode normalises a manufacturer display name into the code used
// by manufacturer_pricing. Unknown names are lower-cased, blanks map to the default.
func ManufacturerCode(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultManufacturer
	}
	if code, ok := manufacturerCodes[name]; ok {
		return code
	}
	return strings.ToLower(name)
}

var regionPattern = regexp.MustCompile(`^(.*?시|.*?도|.*?군)`)

// ExtractRegion returns the shortest leading "…시", "…도" or "…군" prefix of an
// address, trying the alternatives in that order, or "" when none matches.
func ExtractRegion(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	m := regionPattern.FindStringSubmatch(address)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Filter narrows the installed-business query.
type Filter struct {
	InstalledFrom  *time.Time
	InstalledTo    *time.Time
	Manufacturer   string
	SalesOffice    string
	ProgressStatus string
	Region         string
	Limit          int
}
