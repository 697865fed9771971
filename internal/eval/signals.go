package eval

import (
	"fmt"
	"strings"
)

// signalKeys is the full TicketSignals key set; a payload carrying all of
// them is a signals object.
var signalKeys = []string{
	"device_hint",
	"mentions_vpn",
	"mentions_email",
	"mentions_wifi_or_network",
	"mentions_printer",
	"mentions_software_app",
	"mentions_laptop_issue",
	"access_request",
	"security_incident",
	"scope",
	"error_codes",
	"urgency_words",
	"summary",
}

// signalIndicatorKeys are the keys that mark a payload as signal-shaped.
// "summary" is excluded: it appears in triage outputs too.
var signalIndicatorKeys = func() []string {
	out := make([]string, 0, len(signalKeys)-1)
	for _, k := range signalKeys {
		if k != "summary" {
			out = append(out, k)
		}
	}
	return out
}()

// IsTicketSignals reports whether payload carries every TicketSignals key.
func IsTicketSignals(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	for _, k := range signalKeys {
		if _, ok := payload[k]; !ok {
			return false
		}
	}
	return true
}

// LooksLikeTicketSignals reports whether payload carries at least one
// signal indicator key.
func LooksLikeTicketSignals(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	for _, k := range signalIndicatorKeys {
		if _, ok := payload[k]; ok {
			return true
		}
	}
	return false
}

// CoerceSignals forces an untrusted payload into TicketSignals. Total and
// pure: every field ends up with a value from its domain, unparseable
// input maps to the neutral default.
func CoerceSignals(payload map[string]any) TicketSignals {
	return TicketSignals{
		DeviceHint:            coerceChoice(payload["device_hint"], []string{"windows", "mac", "iphone", "android"}, "unknown"),
		MentionsVPN:           coerceBool(payload["mentions_vpn"]),
		MentionsEmail:         coerceBool(payload["mentions_email"]),
		MentionsWifiOrNetwork: coerceBool(payload["mentions_wifi_or_network"]),
		MentionsPrinter:       coerceBool(payload["mentions_printer"]),
		MentionsSoftwareApp:   coerceBool(payload["mentions_software_app"]),
		MentionsLaptopIssue:   coerceBool(payload["mentions_laptop_issue"]),
		AccessRequest:         coerceBool(payload["access_request"]),
		SecurityIncident:      coerceBool(payload["security_incident"]),
		Scope:                 coerceChoice(payload["scope"], []string{"single_user", "multiple_users"}, "unknown"),
		ErrorCodes:            coerceStringList(payload["error_codes"]),
		UrgencyWords:          coerceBool(payload["urgency_words"]),
		Summary:               strings.TrimSpace(stringify(payload["summary"])),
	}
}

// Snapshot returns the compact signal view persisted on result records
// when the signals path produced the output. ErrorCodes and Summary are
// omitted; they are free-form and bloat the line records.
func (s TicketSignals) Snapshot() map[string]any {
	return map[string]any{
		"device_hint":              s.DeviceHint,
		"mentions_vpn":             s.MentionsVPN,
		"mentions_email":           s.MentionsEmail,
		"mentions_wifi_or_network": s.MentionsWifiOrNetwork,
		"mentions_printer":         s.MentionsPrinter,
		"mentions_software_app":    s.MentionsSoftwareApp,
		"mentions_laptop_issue":    s.MentionsLaptopIssue,
		"access_request":           s.AccessRequest,
		"security_incident":        s.SecurityIncident,
		"scope":                    s.Scope,
		"urgency_words":            s.UrgencyWords,
	}
}

// coerceBool accepts booleans, the string forms true/yes/1 and
// false/no/0 (case-insensitive), and otherwise falls back to general
// truthiness.
func coerceBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return truthy(value)
}

func coerceChoice(value any, allowed []string, fallback string) string {
	text := strings.ToLower(strings.TrimSpace(stringify(value)))
	for _, a := range allowed {
		if text == a {
			return text
		}
	}
	return fallback
}

func coerceStringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		if ss, ok := value.([]string); ok {
			items = make([]any, len(ss))
			for i, s := range ss {
				items[i] = s
			}
		} else {
			return []string{}
		}
	}
	out := []string{}
	for _, item := range items {
		text := strings.TrimSpace(stringify(item))
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

// truthy mirrors loose JSON truthiness: nil, false, zero numbers, and
// empty strings/lists/objects are false; everything else is true.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}

// stringify renders a scalar the way the line records do: nil becomes
// empty, strings pass through, everything else goes through fmt.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; render integral values bare.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("%v", value)
}
