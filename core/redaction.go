package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap returns a copy of the gateway additional data safe for
// logs and audit records: card data, credentials, and signatures are
// masked, nested maps and lists are walked, traceability keys pass through
// untouched.
func RedactSensitiveMap(data map[string]any) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(data)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"cardnumber",
		"card_number",
		"cvc",
		"cvv",
		"encrypted",
		"password",
		"secret",
		"token",
		"authorization",
		"authcode",
		"auth_code",
		"api_key",
		"apikey",
		"credential",
		"signature",
		"iban",
		"bankaccount",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

// cardSummary stays visible: it is the shopper-facing last-four digits the
// gateway already considers safe.
func isTraceabilityKey(key string) bool {
	switch key {
	case "pspreference",
		"psp_reference",
		"merchantreference",
		"merchant_reference",
		"merchantaccountcode",
		"eventcode",
		"event_code",
		"resultcode",
		"result_code",
		"order_id",
		"increment_id",
		"quote_id",
		"cardsummary",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
