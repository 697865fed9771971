package eval_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"triagebench/internal/eval"
)

func TestBuildOutputFromSignals_VPNErrorCode(t *testing.T) {
	signals := eval.TicketSignals{
		DeviceHint:  "windows",
		MentionsVPN: true,
		Scope:       "single_user",
		Summary:     "VPN error 809 from home",
	}
	input := "VPN fails with error 809 when connecting from home office. Windows 11 laptop."
	vocab := eval.NewVocabulary("device_os", "vpn_client_name", "when_started")

	out, warnings := eval.BuildOutputFromSignals(signals, input, vocab, true)

	want := eval.TriageOutput{
		Category:           "VPN",
		Priority:           "P2",
		Device:             "Windows",
		NeedsClarification: false,
		MissingFields:      []string{},
		Summary:            "VPN error 809 from home",
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestBuildOutputFromSignals_MultiUserWifiOutage(t *testing.T) {
	signals := eval.TicketSignals{
		DeviceHint:            "unknown",
		MentionsWifiOrNetwork: true,
		Scope:                 "multiple_users",
		Summary:               "Wi-Fi down on the floor",
	}
	input := "Wi-Fi is down on the whole floor, nobody can connect to the internet."

	out, _ := eval.BuildOutputFromSignals(signals, input, nil, true)

	if out.Category != "Network" {
		t.Errorf("category = %q, want Network", out.Category)
	}
	if out.Priority != "P1" {
		t.Errorf("priority = %q, want P1", out.Priority)
	}
	if out.Device != "Unknown" {
		t.Errorf("device = %q, want Unknown", out.Device)
	}
	if out.NeedsClarification {
		t.Error("actionable outage must not need clarification")
	}
	if len(out.MissingFields) != 0 {
		t.Errorf("missing_fields = %v, want empty", out.MissingFields)
	}
}

func TestBuildOutputFromSignals_LostPhoneSecurity(t *testing.T) {
	signals := eval.TicketSignals{
		DeviceHint:       "unknown",
		SecurityIncident: true,
		Scope:            "single_user",
	}
	input := "I lost my phone yesterday, it has my company email on it."
	vocab := eval.NewVocabulary("device_type", "phone_number_or_asset_id", "last_known_time")

	out, warnings := eval.BuildOutputFromSignals(signals, input, vocab, true)

	if out.Category != "Security" {
		t.Errorf("category = %q, want Security", out.Category)
	}
	if out.Priority != "P1" {
		t.Errorf("priority = %q, want P1", out.Priority)
	}
	if out.Device != "Unknown" {
		t.Errorf("device = %q, want Unknown", out.Device)
	}
	if !out.NeedsClarification {
		t.Error("lost-device security must need clarification")
	}
	wantMissing := []string{"device_type", "phone_number_or_asset_id", "last_known_time"}
	if diff := cmp.Diff(wantMissing, out.MissingFields); diff != "" {
		t.Errorf("missing_fields mismatch (-want +got):\n%s", diff)
	}
	if !contains(warnings, "defaulted_summary_from_input") {
		t.Errorf("warnings = %v, want defaulted_summary_from_input", warnings)
	}
	if out.Summary == "" {
		t.Error("summary must default from input text")
	}
}

func TestBuildOutputFromSignals_DropsNonBlockingMissingFields(t *testing.T) {
	signals := eval.TicketSignals{
		DeviceHint:          "unknown",
		MentionsLaptopIssue: true,
		Scope:               "single_user",
		Summary:             "Laptop running hot",
	}
	input := "My laptop is running very hot and fans are loud."
	// Only application_name survives canonicalization, and it does not
	// block a laptop ticket.
	vocab := eval.NewVocabulary("application_name")

	out, warnings := eval.BuildOutputFromSignals(signals, input, vocab, true)

	if out.Category != "Laptop" {
		t.Errorf("category = %q, want Laptop", out.Category)
	}
	if out.NeedsClarification {
		t.Error("non-blocking fields must not trigger clarification")
	}
	if len(out.MissingFields) != 0 {
		t.Errorf("missing_fields = %v, want empty", out.MissingFields)
	}
	if !contains(warnings, "dropped_non_blocking_missing_fields") {
		t.Errorf("warnings = %v, want dropped_non_blocking_missing_fields", warnings)
	}
}

func TestInferCategory_DecisionOrder(t *testing.T) {
	tests := []struct {
		name    string
		signals eval.TicketSignals
		input   string
		want    string
	}{
		{
			name:    "security beats laptop failure",
			signals: eval.TicketSignals{MentionsLaptopIssue: true},
			input:   "Laptop shows blue screen after opening a phishing attachment.",
			want:    "Security",
		},
		{
			name:    "laptop failure beats software signal",
			signals: eval.TicketSignals{MentionsSoftwareApp: true},
			input:   "Machine is stuck in a boot loop since this morning.",
			want:    "Laptop",
		},
		{
			name:    "email context beats access keyword",
			signals: eval.TicketSignals{MentionsEmail: true},
			input:   "Need delegate access to the shared mailbox for our team.",
			want:    "Email",
		},
		{
			name:    "access request",
			signals: eval.TicketSignals{AccessRequest: true},
			input:   "Requesting access to Jira for the new employee starting Monday.",
			want:    "Access",
		},
		{
			name:    "hardware request without access keyword",
			signals: eval.TicketSignals{},
			input:   "My monitor flickers and needs a replacement.",
			want:    "Hardware",
		},
		{
			name:    "print to pdf is software",
			signals: eval.TicketSignals{},
			input:   "Print to PDF stopped working after the update.",
			want:    "Software",
		},
		{
			name:    "printer signal",
			signals: eval.TicketSignals{MentionsPrinter: true},
			input:   "Paper jam on the 3rd floor printer again.",
			want:    "Printer",
		},
		{
			name:    "software symptom without outage",
			signals: eval.TicketSignals{MentionsSoftwareApp: true},
			input:   "Teams is stuck loading on startup.",
			want:    "Software",
		},
		{
			name:    "vpn signal",
			signals: eval.TicketSignals{MentionsVPN: true},
			input:   "Tunnel drops every few minutes.",
			want:    "VPN",
		},
		{
			name:    "fallback laptop",
			signals: eval.TicketSignals{MentionsLaptopIssue: true},
			input:   "Something feels off with my machine.",
			want:    "Laptop",
		},
		{
			name:    "fallback hardware",
			signals: eval.TicketSignals{},
			input:   "It is broken.",
			want:    "Hardware",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eval.InferCategory(tt.signals, tt.input)
			if got != tt.want {
				t.Errorf("InferCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInferDevice(t *testing.T) {
	tests := []struct {
		name  string
		hint  string
		input string
		want  string
	}{
		{"hint wins over text", "mac", "my windows machine is fine", "Mac"},
		{"text fallback", "unknown", "using my android to read mail", "Android"},
		{"bitlocker forces windows", "unknown", "BitLocker is asking for a recovery key", "Windows"},
		{"hotspot scenario is unknown", "windows", "VPN works via hotspot but fails on home wifi", "Unknown"},
		{"lost device without explicit device", "unknown", "lost my phone with company email on it", "Unknown"},
		{"lost device with explicit device", "unknown", "lost my iPhone with company email on it", "iPhone"},
		{"nothing", "unknown", "printer is jammed", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eval.InferDevice(tt.hint, tt.input)
			if got != tt.want {
				t.Errorf("InferDevice(%q, %q) = %q, want %q", tt.hint, tt.input, got, tt.want)
			}
		})
	}
}

func TestInferPriority_CategoryRules(t *testing.T) {
	tests := []struct {
		name    string
		signals eval.TicketSignals
		input   string
		want    string
	}{
		{
			name:    "software install request is P4",
			signals: eval.TicketSignals{MentionsSoftwareApp: true},
			input:   "Please install the new Chrome version when convenient.",
			want:    "P4",
		},
		{
			name:    "urgent access is P2",
			signals: eval.TicketSignals{AccessRequest: true},
			input:   "Requesting access to Confluence, urgent, blocked now.",
			want:    "P2",
		},
		{
			name:    "password reset is P2",
			signals: eval.TicketSignals{AccessRequest: true},
			input:   "I forgot my password and need a password reset for my account.",
			want:    "P2",
		},
		{
			name:    "printer defaults to P3",
			signals: eval.TicketSignals{MentionsPrinter: true},
			input:   "Printer on floor 2 prints blank pages.",
			want:    "P3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eval.InferPriority(tt.signals, tt.input)
			if got != tt.want {
				t.Errorf("InferPriority() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeMissingFieldsToCanonical(t *testing.T) {
	vocab := eval.NewVocabulary("error_message_or_screenshot", "speed_test_result", "when_started")

	strict := eval.NormalizeMissingFieldsToCanonical(
		[]string{"error_message", "bogus_field", "speed_test", "when_started"}, vocab, true)
	wantStrict := []string{"error_message_or_screenshot", "speed_test_result", "when_started"}
	if diff := cmp.Diff(wantStrict, strict); diff != "" {
		t.Errorf("strict mismatch (-want +got):\n%s", diff)
	}

	loose := eval.NormalizeMissingFieldsToCanonical(
		[]string{"error_message", "bogus_field"}, vocab, false)
	wantLoose := []string{"error_message_or_screenshot", "bogus_field"}
	if diff := cmp.Diff(wantLoose, loose); diff != "" {
		t.Errorf("non-strict mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeMissingFieldsToCanonical_DedupesAfterMapping(t *testing.T) {
	vocab := eval.NewVocabulary("error_message_or_screenshot")
	got := eval.NormalizeMissingFieldsToCanonical(
		[]string{"error_message", "exact_error_message"}, vocab, true)
	want := []string{"error_message_or_screenshot"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
