package eval

import "strings"

// StrictMissingFieldsDefault controls whether inferred missing fields
// that cannot be mapped into the run vocabulary are dropped (strict) or
// passed through as-is.
const StrictMissingFieldsDefault = true

// canonFieldMap maps synonym field names a model may emit to the
// canonical names the datasets use. Lookup tries each candidate in order
// and keeps the first one present in the run vocabulary.
var canonFieldMap = map[string][]string{
	"error_message":       {"error_message_or_screenshot", "screenshot_or_error_code"},
	"exact_error_message": {"error_message_or_screenshot", "screenshot_or_error_code"},
	"error_code":          {"screenshot_or_error_code", "error_details"},
	"speed_test":          {"speed_test_result"},
	"since_when":          {"when_started", "start_time"},
	"wifi_or_ethernet":    {"connection_type"},
	"network_type":        {"connection_type", "is_vpn_on"},
	"app_name":            {"application_name"},
	"system_name":         {"sap_system_name", "drive_name", "hr_portal_url"},
	"role_needed":         {"role_or_permissions", "access_level", "role"},
	"time_window":         {"exact_time_window", "start_time"},
	"indicators":          {"error_details"},
	"containment_steps":   {"error_details"},
	"what_happened":       {"what_was_sent", "error_details"},
	"affected_accounts":   {"team_distribution_list", "username", "employee_email"},
	"battery_or_power":    {"on_battery_or_power"},
	"apps_affected":       {"application_name"},
}

// BuildOutputFromSignals runs the full rule pipeline over extracted
// signals plus the raw ticket text and returns a triage output that
// satisfies the consistency law, along with any rule warnings.
func BuildOutputFromSignals(signals TicketSignals, inputText string, vocab Vocabulary, strict bool) (TriageOutput, []string) {
	var warnings orderedSet

	device := InferDevice(signals.DeviceHint, inputText)
	category := InferCategory(signals, inputText)
	priority := inferPriorityFor(category, signals, inputText)
	missing := inferMissingFieldsFor(category, signals, inputText, vocab, strict)
	needsClarification := inferNeedsClarificationFor(category, signals, inputText, missing)

	// Missing fields should only exist when they block action.
	if len(missing) > 0 && !needsClarification {
		missing = []string{}
		warnings.Add("dropped_non_blocking_missing_fields")
	}
	if len(missing) == 0 && needsClarification {
		needsClarification = false
		warnings.Add("forced_needs_clarification_false")
	}

	summary := strings.TrimSpace(signals.Summary)
	if summary == "" {
		summary = truncate(strings.TrimSpace(inputText), 160)
		warnings.Add("defaulted_summary_from_input")
	}

	out := TriageOutput{
		Category:           clamp(category, AllowedCategories, "Software", &warnings, "category_out_of_set"),
		Priority:           clamp(priority, AllowedPriorities, "P3", &warnings, "priority_out_of_set"),
		Device:             clamp(device, AllowedDevices, "Unknown", &warnings, "device_out_of_set"),
		NeedsClarification: needsClarification,
		MissingFields:      missing,
		Summary:            summary,
	}
	return out, warnings.Items()
}

// InferDevice resolves the device from the extracted hint, falling back
// to text evidence. A few scenarios override both.
func InferDevice(deviceHint, inputText string) string {
	text := strings.ToLower(inputText)

	if bitlockerPattern.MatchString(text) {
		return "Windows"
	}
	if hotspotHomePattern.MatchString(text) {
		return "Unknown"
	}
	if isLostDeviceSecurity(text) && !deviceExplicitPattern.MatchString(text) {
		return "Unknown"
	}

	switch strings.ToLower(strings.TrimSpace(deviceHint)) {
	case "windows":
		return "Windows"
	case "mac":
		return "Mac"
	case "iphone":
		return "iPhone"
	case "android":
		return "Android"
	}

	switch {
	case strings.Contains(text, "windows"):
		return "Windows"
	case strings.Contains(text, "macbook"), strings.Contains(text, "mac"):
		return "Mac"
	case strings.Contains(text, "iphone"), strings.Contains(text, "ios"):
		return "iPhone"
	case strings.Contains(text, "android"):
		return "Android"
	}
	return "Unknown"
}

// InferCategory applies the category decision list: first matching rule
// wins, text evidence beats extracted booleans.
func InferCategory(signals TicketSignals, inputText string) string {
	text := strings.ToLower(inputText)
	hasSecurityKeywords := securityPattern.MatchString(text)
	hasLostDeviceSecurity := lostDevicePattern.MatchString(text) &&
		(corpAccessPattern.MatchString(text) || strings.Contains(text, "email") || strings.Contains(text, "access"))
	hasAccessKeyword := accessPattern.MatchString(text)
	hasAccessStrong := accessStrongPattern.MatchString(text)
	hasTrueNetworkOutage := isTrueNetworkOutage(signals, inputText)
	hasNetworkAccessIssue := networkPerfPattern.MatchString(text) ||
		(strings.Contains(text, "company network") && strings.Contains(text, "access")) ||
		(strings.Contains(text, "cannot connect") && strings.Contains(text, "network"))
	hasSoftwareIssue := appNamePattern.MatchString(text) && softwareSymptomPattern.MatchString(text)
	hasPDFSoftwarePattern := printToPDFPattern.MatchString(text) && !strings.Contains(text, "printer")
	hasHardwareRequest := hardwareReqPattern.MatchString(text)
	hasEmailContext := emailCtxPattern.MatchString(text)
	hasLaptopFailure := laptopFailPattern.MatchString(text)

	// 1) Security override (text evidence required)
	if hasSecurityKeywords || hasLostDeviceSecurity {
		return "Security"
	}

	// 2) Laptop/OS failure override beats generic software signals.
	if hasLaptopFailure {
		return "Laptop"
	}

	// 3) Email/calendar/shared mailbox override.
	if hasEmailContext {
		return "Email"
	}

	// 4) Access beats hardware unless the ticket is purely replacement-related.
	isPurePhysicalRequest := physicalReplPattern.MatchString(text) && !hasAccessKeyword
	if hasAccessKeyword && (hasAccessStrong || (!isPurePhysicalRequest && !hasNetworkAccessIssue)) {
		return "Access"
	}

	// Hardware procurement requests are not access provisioning.
	if hasHardwareRequest && !hasAccessKeyword && !hasEmailContext {
		return "Hardware"
	}

	if hasPDFSoftwarePattern {
		return "Software"
	}

	// 5) Printer override
	if signals.MentionsPrinter || printerPattern.MatchString(text) {
		return "Printer"
	}

	// 6) Software vs Network override
	if hasSoftwareIssue {
		if hasTrueNetworkOutage {
			return "Network"
		}
		return "Software"
	}

	// 7) VPN override
	if signals.MentionsVPN || vpnPattern.MatchString(text) {
		return "VPN"
	}

	if hasTrueNetworkOutage {
		return "Network"
	}

	if signals.MentionsWifiOrNetwork && networkPerfPattern.MatchString(text) {
		return "Network"
	}

	// Fallback mapping
	if signals.MentionsLaptopIssue {
		return "Laptop"
	}
	if signals.MentionsEmail {
		return "Email"
	}
	if signals.MentionsSoftwareApp {
		return "Software"
	}
	return "Hardware"
}

// InferPriority resolves the priority from scope, urgency, and the
// per-category severity rules.
func InferPriority(signals TicketSignals, inputText string) string {
	return inferPriorityFor(InferCategory(signals, inputText), signals, inputText)
}

func inferPriorityFor(category string, signals TicketSignals, inputText string) string {
	scope := normalizeScope(signals.Scope)
	text := strings.ToLower(inputText + " " + signals.Summary)
	urgent := urgencyPattern.MatchString(text)
	outageKeywords := outagePattern.MatchString(text) || strongOutagePattern.MatchString(text)
	severeLaptop := laptopFailPattern.MatchString(text)

	switch category {
	case "Security":
		if lostDevicePattern.MatchString(text) || securityPattern.MatchString(text) {
			return "P1"
		}
		return "P2"

	case "Network":
		multiUserOutageText := multiUserTextPattern.MatchString(text)
		if (scope == "multiple_users" && outageKeywords) || (outageKeywords && multiUserOutageText) {
			return "P1"
		}
		if scope == "multiple_users" {
			return "P2"
		}
		corporateExternalBlock := corpNetworkPattern.MatchString(text) &&
			externalSvcPattern.MatchString(text) &&
			(timeoutDNSPattern.MatchString(text) || cannotAccessPattern.MatchString(text))
		if corporateExternalBlock {
			return "P2"
		}
		if networkPerfPattern.MatchString(text) {
			return "P3"
		}
		if urgent {
			return "P2"
		}
		return "P3"

	case "Laptop":
		if severeLaptop {
			return "P1"
		}
		if blockingWorkPattern.MatchString(text) || urgent {
			return "P2"
		}
		return "P3"

	case "VPN":
		if vpnErrorCode.MatchString(text) || urgent || blockingWorkPattern.MatchString(text) {
			return "P2"
		}
		return "P3"

	case "Access":
		if isPasswordReset(text) || strings.Contains(text, "can't access") || strings.Contains(text, "cannot access") {
			return "P2"
		}
		if accessUrgentPattern.MatchString(text) || urgent {
			return "P2"
		}
		return "P3"

	case "Email":
		if scope == "multiple_users" && outageKeywords && !emailCtxPattern.MatchString(text) {
			return "P1"
		}
		if scope == "multiple_users" || urgent {
			return "P2"
		}
		return "P3"

	case "Software":
		if strings.Contains(text, "slack") && strings.Contains(text, "notification") && strings.Contains(text, "update") && !urgent {
			return "P4"
		}
		if strings.Contains(text, "install") || strings.Contains(text, "request") || printToPDFPattern.MatchString(text) {
			return "P4"
		}
		if urgent {
			return "P2"
		}
		return "P3"

	case "Hardware", "Printer":
		if urgent {
			return "P2"
		}
		if category == "Printer" {
			return "P3"
		}
		if hwIssuePattern.MatchString(text) {
			return "P3"
		}
		return "P4"
	}

	if scope == "multiple_users" {
		return "P2"
	}
	if urgent {
		return "P2"
	}
	if scope == "single_user" {
		return "P3"
	}
	return "P4"
}

// InferNeedsClarification decides whether the inferred missing fields
// actually block action for the inferred category.
func InferNeedsClarification(signals TicketSignals, inputText string, missing []string) bool {
	return inferNeedsClarificationFor(InferCategory(signals, inputText), signals, inputText, missing)
}

func inferNeedsClarificationFor(category string, signals TicketSignals, inputText string, missing []string) bool {
	if len(missing) == 0 {
		return false
	}

	if category == "Security" && isLostDeviceSecurity(strings.ToLower(inputText)) {
		return true
	}

	if isIncidentCategory(category) && isActionableIncident(signals, inputText) {
		return false
	}

	switch category {
	case "Access":
		return anyIn(missing,
			"employee_name", "employee_email", "team", "access_level",
			"role_or_permissions", "start_date", "username", "manager_approval",
			"manager_approval_or_group", "sap_system_name", "drive_name",
			"hr_portal_url", "alternate_contact")
	case "Laptop":
		return anyIn(missing,
			"username", "device_os", "when_started", "asset_id", "apps_affected",
			"on_battery_or_power", "stop_code", "recent_changes")
	case "Printer":
		return anyIn(missing, "printer_id_or_model", "location")
	}
	return true
}

// InferMissingFields builds the per-category candidate field list, prunes
// candidates already evidenced in the ticket text, and canonicalizes the
// remainder against the run vocabulary.
func InferMissingFields(signals TicketSignals, inputText string, vocab Vocabulary, strict bool) []string {
	return inferMissingFieldsFor(InferCategory(signals, inputText), signals, inputText, vocab, strict)
}

func inferMissingFieldsFor(category string, signals TicketSignals, inputText string, vocab Vocabulary, strict bool) []string {
	text := strings.ToLower(inputText)
	if category == "Security" && isLostDeviceSecurity(text) {
		return NormalizeMissingFieldsToCanonical(
			[]string{"device_type", "phone_number_or_asset_id", "last_known_time"}, vocab, strict)
	}

	if isIncidentCategory(category) && isActionableIncident(signals, inputText) {
		return []string{}
	}

	var candidates orderedSet

	switch category {
	case "Access":
		if newJoinerPattern.MatchString(text) {
			candidates.Add("employee_name", "employee_email", "team", "access_level", "start_date")
		}
		if strings.Contains(text, "sap") {
			candidates.Add("username", "sap_system_name", "role_or_permissions", "manager_approval")
		}
		if strings.Contains(text, "drive") {
			candidates.Add("drive_name", "manager_approval_or_group")
		}
		if strings.Contains(text, "hr portal") {
			candidates.Add("username", "hr_portal_url", "screenshot_or_error_code")
		}
		if isPasswordReset(text) {
			candidates.Add("username", "alternate_contact")
		}
		if len(candidates.Items()) == 0 {
			candidates.Add("username", "access_level")
		}

	case "Laptop":
		switch {
		case bitlockerPattern.MatchString(text):
			candidates.Add("asset_id", "username", "is_company_managed")
		case isLoginIssue(signals, inputText):
			candidates.Add("device_os", "username", "when_started")
		case laptopFailPattern.MatchString(text):
			candidates.Add("device_os", "stop_code", "recent_changes")
		default:
			candidates.Add("device_os", "when_started", "apps_affected", "on_battery_or_power")
		}

	case "Printer":
		candidates.Add("printer_id_or_model", "location")

	case "Software":
		if appNamePattern.MatchString(text) && softwareSymptomPattern.MatchString(text) {
			candidates.Add("when_started", "error_message")
		}
		if strings.Contains(text, "zoom") {
			candidates.Add("zoom_version")
			if strings.Contains(text, "removed") {
				candidates.Add("device_os", "zoom_account_email", "meeting_id")
			}
		}
		if strings.Contains(text, "slack") {
			candidates.Add("slack_version", "when_started")
		}
		if strings.Contains(text, "docker") {
			candidates.Add("admin_approval", "windows_version")
		}
		if strings.Contains(text, "print to pdf") || strings.Contains(text, "pdf") {
			candidates.Add("device_os", "application_name", "when_started")
		}
		if len(candidates.Items()) == 0 && signals.MentionsSoftwareApp {
			candidates.Add("when_started", "error_message")
		}

	case "Network":
		if strings.Contains(text, "slow") {
			return NormalizeMissingFieldsToCanonical(
				[]string{"location_floor", "speed_test", "start_time"}, vocab, strict)
		}
		if strings.Contains(text, "github") {
			candidates.Add("location", "is_vpn_on", "error_details")
		}
		if (strings.Contains(text, "wifi") || strings.Contains(text, "wi-fi")) && !strings.Contains(text, "slow") {
			candidates.Add("wifi_or_ethernet")
		}

	case "VPN":
		if hotspotHomePattern.MatchString(text) {
			candidates.Add("device_os", "vpn_client_name", "home_router_model")
		} else if !isActionableIncident(signals, inputText) {
			candidates.Add("device_os", "vpn_client_name", "exact_error_message", "when_started")
			if strings.Contains(text, "home") || strings.Contains(text, "hotspot") {
				candidates.Add("home_router_model")
			}
			if strings.Contains(text, "night") || strings.Contains(text, "morning") {
				candidates.Add("timezone", "exact_time_window")
			}
		}

	case "Security":
		if strings.Contains(text, "external email") || strings.Contains(text, "sent") {
			candidates.Add("recipient_email_domain", "what_happened", "time_sent")
		}
		if strings.Contains(text, "lost") && strings.Contains(text, "phone") {
			candidates.Add("device_type", "phone_number_or_asset_id", "last_known_time")
		}

	case "Email":
		if strings.Contains(text, "calendar") || strings.Contains(text, "mailbox") {
			candidates.Add("calendar_name", "team_distribution_list", "start_time")
		} else if strings.Contains(text, "delivery") && (strings.Contains(text, "whole company") || strings.Contains(text, "company")) {
			candidates.Add("start_time", "affected_domains")
		}

	case "Hardware":
		if strings.Contains(text, "monitor") {
			candidates.Add("laptop_model", "monitor_model", "cable_or_port_tested")
		}
		if strings.Contains(text, "keyboard") {
			candidates.Add("keyboard_type", "connection_type", "when_started")
		}
		if strings.Contains(text, "new laptop") {
			candidates.Add("employee_name", "start_date", "role", "preferred_os")
		}
	}

	var unresolved []string
	for _, candidate := range candidates.Items() {
		if fieldMentioned(candidate, inputText, signals) {
			continue
		}
		unresolved = append(unresolved, candidate)
	}

	return NormalizeMissingFieldsToCanonical(unresolved, vocab, strict)
}

// NormalizeMissingFieldsToCanonical maps field names into the run
// vocabulary via canonFieldMap. In strict mode unmappable fields are
// dropped; otherwise they pass through unchanged.
func NormalizeMissingFieldsToCanonical(fields []string, vocab Vocabulary, strict bool) []string {
	var normalized orderedSet
	for _, field := range Dedupe(fields) {
		canonical, ok := mapToCanonical(field, vocab)
		if !ok {
			if strict {
				continue
			}
			canonical = field
		}
		normalized.Add(canonical)
	}
	return normalized.Items()
}

func mapToCanonical(field string, vocab Vocabulary) (string, bool) {
	if vocab.Contains(field) {
		return field, true
	}
	for _, candidate := range canonFieldMap[field] {
		if vocab.Contains(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func anyIn(values []string, set ...string) bool {
	for _, v := range values {
		for _, s := range set {
			if v == s {
				return true
			}
		}
	}
	return false
}

func isIncidentCategory(category string) bool {
	switch category {
	case "VPN", "Network", "Email", "Security":
		return true
	}
	return false
}

// isActionableIncident reports whether the ticket already carries enough
// scope and symptom evidence that a responder can act without asking for
// more.
func isActionableIncident(signals TicketSignals, inputText string) bool {
	text := strings.ToLower(inputText)
	scope := normalizeScope(signals.Scope)
	hasScopeOrLocation := scope == "single_user" || scope == "multiple_users" || locationPattern.MatchString(text)
	hasClearSymptom := errorHintPattern.MatchString(text) ||
		strongOutagePattern.MatchString(text) ||
		loginWordPattern.MatchString(text) ||
		vpnErrorCode.MatchString(text) ||
		outlookPwdPattern.MatchString(text) ||
		lostDevicePattern.MatchString(text)
	return hasScopeOrLocation && hasClearSymptom
}

func isTrueNetworkOutage(signals TicketSignals, inputText string) bool {
	text := strings.ToLower(inputText)
	scope := normalizeScope(signals.Scope)
	explicitOutage := strongOutagePattern.MatchString(text)
	hasNetworkText := networkTermPattern.MatchString(text)
	multiUserSignal := signals.MentionsWifiOrNetwork && scope == "multiple_users" && hasNetworkText
	explicitMultiOutage := outageMultiPattern.MatchString(text)
	return explicitOutage || multiUserSignal || explicitMultiOutage
}

func isLostDeviceSecurity(text string) bool {
	return lostDevicePattern.MatchString(text) &&
		(corpAccessPattern.MatchString(text) || strings.Contains(text, "email") || strings.Contains(text, "access"))
}

func isPasswordReset(text string) bool {
	return strings.Contains(text, "password reset") ||
		(strings.Contains(text, "forgot") && strings.Contains(text, "password"))
}

func isLoginIssue(signals TicketSignals, inputText string) bool {
	if signals.AccessRequest {
		return false
	}
	return loginWordPattern.MatchString(inputText)
}

// fieldMentioned reports whether the ticket already evidences the value
// the named field would ask for, so the field need not be requested.
func fieldMentioned(field, inputText string, signals TicketSignals) bool {
	text := strings.ToLower(inputText)

	switch field {
	case "device_os":
		return deviceWordPattern.MatchString(text)
	case "username":
		return emailAddrPattern.MatchString(text) || usernamePattern.MatchString(text)
	case "employee_name":
		return nameHintPattern.MatchString(inputText)
	case "employee_email", "alternate_contact":
		return emailAddrPattern.MatchString(text)
	case "team", "team_distribution_list":
		return teamPattern.MatchString(text)
	case "access_level", "role_or_permissions", "role":
		return accessLevelPattern.MatchString(text)
	case "manager_approval", "manager_approval_or_group":
		return managerPattern.MatchString(text)
	case "start_date":
		return deadlinePattern.MatchString(text)
	case "sap_system_name":
		return strings.Contains(text, "sap")
	case "drive_name":
		return strings.Contains(text, "drive")
	case "hr_portal_url":
		return strings.Contains(text, "hr portal")
	case "screenshot_or_error_code", "error_message_or_screenshot", "error_details":
		return errorHintPattern.MatchString(text)
	case "printer_id_or_model":
		return printerIDPattern.MatchString(inputText)
	case "location", "location_floor":
		return locationPattern.MatchString(text)
	case "when_started", "start_time", "time_sent", "exact_time_window", "last_known_time":
		return timeHintPattern.MatchString(text)
	case "connection_type":
		return connTypePattern.MatchString(text)
	case "speed_test_result":
		return speedTestPattern.MatchString(text)
	case "vpn_client_name":
		return vpnClientPattern.MatchString(text)
	case "home_router_model":
		return strings.Contains(text, "router")
	case "timezone":
		return timezonePattern.MatchString(text)
	case "zoom_version":
		return zoomVersionPattern.MatchString(text)
	case "zoom_account_email":
		return strings.Contains(text, "zoom") && emailAddrPattern.MatchString(text)
	case "meeting_id":
		return meetingIDPattern.MatchString(text)
	case "slack_version":
		return slackVerPattern.MatchString(text)
	case "application_name":
		return appWordPattern.MatchString(text)
	case "admin_approval":
		return adminApprPattern.MatchString(text)
	case "windows_version":
		return windowsVerPattern.MatchString(text)
	case "recipient_email_domain", "what_was_sent":
		return emailAddrPattern.MatchString(text) || strings.Contains(text, "sent")
	case "device_type", "phone_number_or_asset_id":
		return phoneAssetPattern.MatchString(text)
	case "asset_id":
		return assetIDPattern.MatchString(text)
	case "on_battery_or_power":
		return batteryPattern.MatchString(text)
	case "apps_affected":
		return appAffectedPattern.MatchString(text)
	case "scope":
		scope := normalizeScope(signals.Scope)
		return scope == "single_user" || scope == "multiple_users"
	}
	return false
}

func normalizeScope(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	switch lowered {
	case "single_user", "multiple_users", "unknown":
		return lowered
	}
	return "unknown"
}

func clamp(value string, allowed []string, fallback string, warnings *orderedSet, warning string) string {
	if inAllowed(value, allowed) {
		return value
	}
	warnings.Add(warning)
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
