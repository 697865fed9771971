package eval

import "strings"

// categorySynonyms maps substrings of off-vocabulary category labels to
// the closed set. Checked in order; first hit wins.
var categorySynonyms = []struct {
	key    string
	mapped string
}{
	{"auth", "Access"},
	{"authentication", "Access"},
	{"login", "Access"},
	{"password", "Access"},
	{"account", "Access"},
	{"wifi", "Network"},
	{"wi-fi", "Network"},
	{"internet", "Network"},
	{"outlook", "Email"},
	{"mail", "Email"},
	{"calendar", "Email"},
	{"zoom", "Software"},
	{"teams", "Software"},
	{"slack", "Software"},
	{"docker", "Software"},
	{"bitlocker", "Laptop"},
	{"blue screen", "Laptop"},
	{"bsod", "Laptop"},
}

// NormalizeOutput coerces a raw model object into the closed triage
// vocabulary. It repairs upward only: it can set needs_clarification true
// when missing_fields is non-empty, but never empties missing_fields, so
// a clarification flag without fields survives as a warning.
func NormalizeOutput(actual map[string]any, inputText string) (map[string]any, []string) {
	normalized := make(map[string]any, len(actual)+1)
	for k, v := range actual {
		normalized[k] = v
	}
	var warnings orderedSet
	text := strings.ToLower(inputText)

	category := ensureTextKey(normalized, "category", "Software", &warnings)
	priority := ensureTextKey(normalized, "priority", "P3", &warnings)
	ensureTextKey(normalized, "summary", "", &warnings)
	if _, ok := normalized["needs_clarification"]; !ok {
		normalized["needs_clarification"] = false
		warnings.Add("defaulted_needs_clarification")
	}
	if _, ok := normalized["missing_fields"]; !ok {
		normalized["missing_fields"] = []string{}
		warnings.Add("defaulted_missing_fields")
	}

	normalized["category"] = normalizeCategory(category, &warnings)
	normalized["priority"] = normalizePriority(priority, &warnings)
	normalized["device"] = normalizeDevice(normalized["device"], text, &warnings)
	normalized["summary"] = strings.TrimSpace(stringify(normalized["summary"]))
	missing := normalizeMissingFields(normalized["missing_fields"], &warnings)
	normalized["missing_fields"] = missing
	needsClarification := coerceBool(normalized["needs_clarification"])

	// Keep the clarification fields internally consistent.
	if len(missing) > 0 && !needsClarification {
		needsClarification = true
		warnings.Add("coerced_needs_clarification_true")
	}
	if needsClarification && len(missing) == 0 {
		warnings.Add("needs_clarification_without_missing_fields")
	}
	normalized["needs_clarification"] = needsClarification

	return normalized, warnings.Items()
}

// ensureTextKey replaces nil, absent, or blank values with the default
// and returns the resulting text.
func ensureTextKey(data map[string]any, key, def string, warnings *orderedSet) string {
	value, ok := data[key]
	if !ok || value == nil {
		data[key] = def
		warnings.Add("defaulted_" + key)
		return def
	}
	text := strings.TrimSpace(stringify(value))
	if text == "" {
		data[key] = def
		warnings.Add("defaulted_" + key)
		return def
	}
	data[key] = text
	return text
}

func normalizeCategory(category string, warnings *orderedSet) string {
	clean := strings.TrimSpace(category)
	lowered := strings.ToLower(clean)

	if inAllowed(clean, AllowedCategories) {
		return clean
	}

	for _, syn := range categorySynonyms {
		if strings.Contains(lowered, syn.key) {
			warnings.Add("normalized_category_synonym")
			return syn.mapped
		}
	}

	if strings.Contains(lowered, "vpn") {
		warnings.Add("normalized_category_synonym")
		return "VPN"
	}

	warnings.Add("category_out_of_set")
	return "Software"
}

func normalizeDevice(deviceValue any, inputTextLower string, warnings *orderedSet) string {
	inferred := deviceFromText(inputTextLower)
	raw := ""
	if s, ok := deviceValue.(string); ok {
		raw = strings.TrimSpace(s)
	}

	if raw == "" {
		if inferred != "" {
			warnings.Add("defaulted_device_from_text")
			return inferred
		}
		warnings.Add("defaulted_device")
		return "Unknown"
	}

	lowered := strings.ToLower(raw)
	switch {
	case strings.Contains(lowered, "iphone"), strings.Contains(lowered, "ios"):
		return "iPhone"
	case strings.Contains(lowered, "android"):
		return "Android"
	case strings.Contains(lowered, "mac"):
		return "Mac"
	case strings.Contains(lowered, "windows"):
		return "Windows"
	}

	if raw == "Laptop" && (inferred == "Windows" || inferred == "Mac") {
		warnings.Add("mapped_laptop_to_os_device")
		return inferred
	}

	if inAllowed(raw, AllowedDevices) {
		return raw
	}

	if inferred != "" {
		warnings.Add("device_out_of_set_mapped_from_text")
		return inferred
	}

	warnings.Add("device_out_of_set")
	return "Unknown"
}

func normalizePriority(priority string, warnings *orderedSet) string {
	clean := strings.ToUpper(strings.TrimSpace(priority))
	if inAllowed(clean, AllowedPriorities) {
		return clean
	}
	switch clean {
	case "HIGH", "URGENT":
		warnings.Add("normalized_priority")
		return "P1"
	case "MEDIUM", "NORMAL":
		warnings.Add("normalized_priority")
		return "P3"
	case "LOW":
		warnings.Add("normalized_priority")
		return "P4"
	}
	if n := len(clean); n > 0 {
		switch clean[n-1] {
		case '1', '2', '3', '4':
			warnings.Add("normalized_priority")
			return "P" + clean[n-1:]
		}
	}
	warnings.Add("priority_out_of_set")
	return "P3"
}

func normalizeMissingFields(value any, warnings *orderedSet) []string {
	items, ok := value.([]any)
	if !ok {
		if ss, ok := value.([]string); ok {
			return Dedupe(cleanStrings(ss))
		}
		warnings.Add("defaulted_missing_fields")
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(stringify(item))
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return Dedupe(out)
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		text := strings.TrimSpace(v)
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

// deviceFromText infers a device from ticket text alone, returning ""
// when nothing matches.
func deviceFromText(inputTextLower string) string {
	switch {
	case strings.Contains(inputTextLower, "windows"):
		return "Windows"
	case strings.Contains(inputTextLower, "macbook"), strings.Contains(inputTextLower, "mac"):
		return "Mac"
	case strings.Contains(inputTextLower, "iphone"), strings.Contains(inputTextLower, "ios"):
		return "iPhone"
	case strings.Contains(inputTextLower, "android"):
		return "Android"
	}
	return ""
}
