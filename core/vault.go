package core

import "strings"

const (
	additionalDataRecurringReference = "recurring.recurringDetailReference"
	additionalDataStoredMethodID     = "tokenization.storedPaymentMethodId"
	additionalDataShopperReference   = "recurring.shopperReference"
	additionalDataCardSummary        = "cardSummary"
	additionalDataExpiryDate         = "expiryDate"
	additionalDataPaymentMethod      = "paymentMethod"
)

// ExtractRecurringDetails pulls the stored-payment-method payload out of a
// gateway response's additional data. It is pure; whether anything useful
// was present is answered by RecurringDetails.HasToken.
func ExtractRecurringDetails(resp GatewayResponse) RecurringDetails {
	data := resp.AdditionalData
	details := RecurringDetails{
		RecurringReference: readStringValue(data, additionalDataRecurringReference),
		StoredMethodID:     readStringValue(data, additionalDataStoredMethodID),
		ShopperReference:   readStringValue(data, additionalDataShopperReference),
		CardSummary:        readStringValue(data, additionalDataCardSummary),
		Brand:              readStringValue(data, additionalDataPaymentMethod),
		Type:               strings.TrimSpace(resp.PaymentMethod.Type),
	}
	if details.Brand == "" {
		details.Brand = strings.TrimSpace(resp.PaymentMethod.Brand)
	}
	details.ExpiryMonth, details.ExpiryYear = splitExpiryDate(readStringValue(data, additionalDataExpiryDate))
	return details
}

// splitExpiryDate parses the gateway's "MM/YYYY" expiry format. Malformed
// values yield empty parts rather than an error; vault recording treats
// expiry as advisory.
func splitExpiryDate(raw string) (month string, year string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	month = strings.TrimSpace(parts[0])
	year = strings.TrimSpace(parts[1])
	if month == "" || year == "" {
		return "", ""
	}
	return month, year
}

func readStringValue(data map[string]any, key string) string {
	if len(data) == 0 {
		return ""
	}
	value, ok := data[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
