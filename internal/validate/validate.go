// Package validate provides per-type value validators for form fields.
//
// Validators are pure functions: they never mutate state and never return
// errors, only a verdict and a human-readable message suitable for relaying
// back to the conversation.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Spec describes which validator applies to a field and its parameters.
type Spec struct {
	// Type selects the validator: "text", "date_de", "postal_code_de" or
	// "integer_choice". Unknown types pass validation.
	Type string `yaml:"type" json:"type"`

	// Config holds validator-specific parameters, e.g. "min" and "max"
	// for integer_choice.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

var (
	dateDigits       = regexp.MustCompile(`^\d{8}$`)
	postalCodeDigits = regexp.MustCompile(`^\d{4,5}$`)
)

// Check applies a field's full validation: required/empty handling first,
// then the type-specific validator named in spec.
func Check(spec Spec, required bool, value string) (bool, string) {
	if strings.TrimSpace(value) == "" {
		if required {
			return false, "a value is required for this field"
		}
		return true, ""
	}
	return ByType(spec.Type, value, spec.Config)
}

// ByType validates value against the named validator type. It returns the
// verdict and a message explaining a failed validation. Unknown types pass
// so that adding a field with a new validator never hard-fails a session.
func ByType(typ, value string, cfg map[string]any) (bool, string) {
	switch typ {
	case "text":
		if strings.TrimSpace(value) == "" {
			return false, "value must not be empty"
		}
		return true, ""

	case "date_de":
		return validateDateDE(value)

	case "postal_code_de":
		if !postalCodeDigits.MatchString(strings.TrimSpace(value)) {
			return false, "postal code must be 4 or 5 digits"
		}
		return true, ""

	case "integer_choice":
		return validateIntegerChoice(value, cfg)

	default:
		return true, ""
	}
}

// validateDateDE accepts eight digits in DDMMYYYY order and checks that they
// form a real calendar date.
func validateDateDE(value string) (bool, string) {
	v := strings.TrimSpace(value)
	if !dateDigits.MatchString(v) {
		return false, "date must be 8 digits in DDMMYYYY format, e.g. 01021990"
	}
	if _, err := time.Parse("02012006", v); err != nil {
		return false, fmt.Sprintf("%s is not a valid calendar date", v)
	}
	return true, ""
}

// validateIntegerChoice accepts an integer within the inclusive [min,max]
// range taken from cfg. Missing bounds default to 0.
func validateIntegerChoice(value string, cfg map[string]any) (bool, string) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Sprintf("%q is not a number", value)
	}
	min := intConfig(cfg, "min", 0)
	max := intConfig(cfg, "max", 0)
	if n < min || n > max {
		return false, fmt.Sprintf("value must be between %d and %d", min, max)
	}
	return true, ""
}

// intConfig reads an integer from a config map, tolerating the numeric
// types YAML and JSON decoding produce.
func intConfig(cfg map[string]any, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}
