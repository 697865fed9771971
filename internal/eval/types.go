// Package eval implements the ticket-triage rule engine: signal coercion,
// category/priority/device inference, output normalization, schema
// validation, and per-case scoring against ground truth.
package eval

// AllowedCategories is the closed category set. Order matters only for
// display; membership is what the engine checks.
var AllowedCategories = []string{
	"VPN",
	"Email",
	"Access",
	"Laptop",
	"Network",
	"Printer",
	"Software",
	"Security",
	"Hardware",
}

var AllowedDevices = []string{"Windows", "Mac", "iPhone", "Android", "Unknown"}

var AllowedPriorities = []string{"P1", "P2", "P3", "P4"}

// TriageOutput is the canonical structured triage record. Every output the
// engine produces satisfies the consistency law:
// NeedsClarification == (len(MissingFields) > 0).
type TriageOutput struct {
	Category           string   `json:"category"`
	Priority           string   `json:"priority"`
	Device             string   `json:"device"`
	NeedsClarification bool     `json:"needs_clarification"`
	MissingFields      []string `json:"missing_fields"`
	Summary            string   `json:"summary"`
}

// AsMap converts the output into the loose object form used by the
// normalizer and scorer.
func (o TriageOutput) AsMap() map[string]any {
	missing := o.MissingFields
	if missing == nil {
		missing = []string{}
	}
	return map[string]any{
		"category":            o.Category,
		"priority":            o.Priority,
		"device":              o.Device,
		"needs_clarification": o.NeedsClarification,
		"missing_fields":      missing,
		"summary":             o.Summary,
	}
}

// TicketSignals is the fixed-shape record an extraction model produces
// from raw ticket text. After CoerceSignals every field holds a value from
// its domain; unparseable input maps to the neutral default.
type TicketSignals struct {
	DeviceHint            string   `json:"device_hint"`
	MentionsVPN           bool     `json:"mentions_vpn"`
	MentionsEmail         bool     `json:"mentions_email"`
	MentionsWifiOrNetwork bool     `json:"mentions_wifi_or_network"`
	MentionsPrinter       bool     `json:"mentions_printer"`
	MentionsSoftwareApp   bool     `json:"mentions_software_app"`
	MentionsLaptopIssue   bool     `json:"mentions_laptop_issue"`
	AccessRequest         bool     `json:"access_request"`
	SecurityIncident      bool     `json:"security_incident"`
	Scope                 string   `json:"scope"`
	ErrorCodes            []string `json:"error_codes"`
	UrgencyWords          bool     `json:"urgency_words"`
	Summary               string   `json:"summary"`
}

// Vocabulary is the run-scoped set of canonical missing-field names,
// derived once from the evaluation dataset's expected records and treated
// as read-only for the rest of the run.
type Vocabulary map[string]bool

// NewVocabulary builds a Vocabulary from field names.
func NewVocabulary(fields ...string) Vocabulary {
	v := make(Vocabulary, len(fields))
	for _, f := range fields {
		v[f] = true
	}
	return v
}

// Contains reports membership; a nil vocabulary contains nothing.
func (v Vocabulary) Contains(field string) bool {
	return v[field]
}

func inAllowed(value string, allowed []string) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}
