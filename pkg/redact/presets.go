package redact

import (
	"fmt"
	"regexp"
)

// PresetRules returns the compiled rule set for a named built-in
// preset. "secrets" is the base layer; "pii" extends it; "strict"
// extends "pii". Rule text here is a reference catalogue, not a wire
// contract — the testable behavior is per-category (spec §4.4).
func PresetRules(name string) ([]Rule, error) {
	switch name {
	case "secrets":
		return secretsRules(), nil
	case "pii":
		return append(secretsRules(), piiRules()...), nil
	case "strict":
		rules := append(secretsRules(), piiRules()...)
		return append(rules, strictRules()...), nil
	default:
		return nil, fmt.Errorf("redact: unknown preset %q", name)
	}
}

func mustCompile(src string) *regexp.Regexp {
	return regexp.MustCompile(src)
}

func secretsRules() []Rule {
	return []Rule{
		{
			ID:          "pem_block",
			Pattern:     mustCompile(`-----BEGIN [A-Z ]+-----[\s\S]+?-----END [A-Z ]+-----`),
			Replacement: "[PEM_BLOCK_REDACTED]",
		},
		{
			ID:          "aws_access_key",
			Pattern:     mustCompile(`AKIA[0-9A-Z]{16}`),
			Replacement: "[AWS_ACCESS_KEY_REDACTED]",
		},
		{
			ID:            "aws_secret_key",
			Pattern:       mustCompile(`(?i)aws_secret_access_key\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})['"]?`),
			Replacement:   "[AWS_SECRET_KEY_REDACTED]",
			ContextWords:  []string{"aws", "secret"},
			ContextWindow: 40,
		},
		{
			ID:          "github_token",
			Pattern:     mustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`),
			Replacement: "[GITHUB_TOKEN_REDACTED]",
		},
		{
			ID:          "anthropic_key",
			Pattern:     mustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
			Replacement: "[ANTHROPIC_KEY_REDACTED]",
		},
		{
			ID:          "openai_key",
			Pattern:     mustCompile(`sk-[A-Za-z0-9]{16,}T3BlbkFJ[A-Za-z0-9]{16,}`),
			Replacement: "[OPENAI_KEY_REDACTED]",
		},
		{
			ID:          "generic_api_key",
			Pattern:     mustCompile(`(?i)\b(?:sk|pk|api|key|token)-[A-Za-z0-9_-]{16,}`),
			Replacement: "[API_KEY_REDACTED]",
		},
		{
			ID:          "password_or_token_assignment",
			Pattern:     mustCompile(`(?i)(?:password|secret|token)\s*[:=]\s*['"]?[^\s'"]{6,}['"]?`),
			Replacement: "[CREDENTIAL_REDACTED]",
		},
	}
}

func piiRules() []Rule {
	return []Rule{
		{
			ID:          "email",
			Pattern:     mustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			Replacement: "[EMAIL_REDACTED]",
		},
		{
			ID:            "ssn",
			Pattern:       mustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Replacement:   "[SSN_REDACTED]",
			ContextWords:  []string{"ssn", "social security"},
			ContextWindow: 40,
		},
		{
			ID:            "credit_card",
			Pattern:       mustCompile(`\b(?:\d[ -]?){13,16}\b`),
			Replacement:   "[CREDIT_CARD_REDACTED]",
			ContextWords:  []string{"card", "cc", "credit", "visa", "mastercard"},
			ContextWindow: 40,
		},
		{
			ID:            "phone_us",
			Pattern:       mustCompile(`\(?\d{3}\)?[ -]?\d{3}-\d{4}`),
			Replacement:   "[PHONE_US_REDACTED]",
			ContextWords:  []string{"call", "phone", "tel", "number"},
			ContextWindow: 40,
		},
		{
			ID:            "phone_eu",
			Pattern:       mustCompile(`\+\d{1,3}[ -]?\d{2,4}[ -]?\d{3,4}[ -]?\d{3,4}`),
			Replacement:   "[PHONE_EU_REDACTED]",
			ContextWords:  []string{"call", "phone", "tel", "number"},
			ContextWindow: 40,
		},
		{
			ID:            "iban",
			Pattern:       mustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`),
			Replacement:   "[IBAN_REDACTED]",
			ContextWords:  []string{"iban", "account", "bank"},
			ContextWindow: 40,
		},
	}
}

func strictRules() []Rule {
	return []Rule{
		{
			ID:          "ipv4",
			Pattern:     mustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\b`),
			Replacement: "[IPV4_REDACTED]",
		},
		{
			ID:          "ipv6",
			Pattern:     mustCompile(`\b(?:[0-9A-Fa-f]{1,4}:){7}[0-9A-Fa-f]{1,4}\b`),
			Replacement: "[IPV6_REDACTED]",
		},
		{
			ID:            "date_of_birth",
			Pattern:       mustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
			Replacement:   "[DOB_REDACTED]",
			ContextWords:  []string{"birth", "dob", "born"},
			ContextWindow: 40,
		},
		{
			ID:            "nl_bsn",
			Pattern:       mustCompile(`\b\d{9}\b`),
			Replacement:   "[BSN_REDACTED]",
			ContextWords:  []string{"bsn", "burgerservicenummer"},
			ContextWindow: 40,
		},
		{
			ID:            "uk_ni_number",
			Pattern:       mustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\d{6}[A-D]\b`),
			Replacement:   "[UK_NI_REDACTED]",
			ContextWords:  []string{"national insurance", "ni number"},
			ContextWindow: 40,
		},
		{
			ID:            "passport",
			Pattern:       mustCompile(`\b[A-Z]{1,2}\d{6,9}\b`),
			Replacement:   "[PASSPORT_REDACTED]",
			ContextWords:  []string{"passport"},
			ContextWindow: 40,
		},
	}
}
