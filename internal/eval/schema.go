package eval

// requiredOutputFields lists the keys every triage output must carry, in
// report order.
var requiredOutputFields = []string{
	"category",
	"priority",
	"device",
	"needs_clarification",
	"missing_fields",
	"summary",
}

// ValidateRequiredFields checks that output carries every required key
// with the right shape: strings for the text fields, a bool for
// needs_clarification, a list for missing_fields.
func ValidateRequiredFields(output map[string]any) (bool, []string) {
	var errors []string
	if output == nil {
		return false, []string{"Output must be a JSON object"}
	}

	for _, field := range requiredOutputFields {
		value, ok := output[field]
		if !ok {
			errors = append(errors, "Missing key: "+field)
			continue
		}

		switch field {
		case "needs_clarification":
			if _, ok := value.(bool); !ok {
				errors = append(errors, "Key 'needs_clarification' must be bool")
			}
		case "missing_fields":
			if !isList(value) {
				errors = append(errors, "Key 'missing_fields' must be list")
			}
		default:
			if _, ok := value.(string); !ok {
				errors = append(errors, "Key '"+field+"' must be str")
			}
		}
	}

	return len(errors) == 0, errors
}

func isList(value any) bool {
	switch value.(type) {
	case []any, []string:
		return true
	}
	return false
}
