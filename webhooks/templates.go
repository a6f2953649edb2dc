package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// WebhookTemplate bundles the verifiers for one notification channel.
type WebhookTemplate struct {
	Source       string
	Verifier     Verifier
	ItemVerifier ItemVerifier
}

// HeaderHMACVerifier checks an HMAC-SHA256 signature computed over the raw
// request body and carried in a header.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req Request) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	}
	return nil
}

// BasicAuthVerifier checks the credentials the gateway is configured to send
// with every notification webhook.
type BasicAuthVerifier struct {
	Username string
	Password string
}

func (v BasicAuthVerifier) Verify(_ context.Context, req Request) error {
	username := strings.TrimSpace(v.Username)
	if username == "" {
		return fmt.Errorf("webhooks: basic auth username is required")
	}
	header := strings.TrimSpace(headerValue(req.Headers, "Authorization"))
	if header == "" {
		return fmt.Errorf("webhooks: authorization header is required")
	}
	const scheme = "Basic "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return fmt.Errorf("webhooks: authorization header is not basic auth")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(scheme):]))
	if err != nil {
		return fmt.Errorf("webhooks: decode basic auth credentials: %w", err)
	}
	expected := []byte(username + ":" + v.Password)
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: basic auth credentials mismatch")
	}
	return nil
}

// ItemHMACVerifier checks the per-item HMAC-SHA256 signature the gateway
// places in additionalData. The signing payload joins the item fields with
// colons after escaping backslashes and colons inside each value, and the
// key is hex encoded.
type ItemHMACVerifier struct {
	Key string
}

// HMACSignatureKey is the additionalData entry carrying the item signature.
const HMACSignatureKey = "hmacSignature"

func (v ItemHMACVerifier) VerifyItem(_ context.Context, item NotificationItem) error {
	key, err := hex.DecodeString(strings.TrimSpace(v.Key))
	if err != nil {
		return fmt.Errorf("webhooks: decode hmac key: %w", err)
	}
	if len(key) == 0 {
		return fmt.Errorf("webhooks: hmac key is required")
	}

	signature := ""
	if raw, ok := item.AdditionalData[HMACSignatureKey]; ok {
		signature = strings.TrimSpace(fmt.Sprint(raw))
	}
	if signature == "" {
		return fmt.Errorf("webhooks: notification item carries no hmac signature")
	}
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("webhooks: decode base64 item signature: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(itemSigningPayload(item)))
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(provided, expected) != 1 {
		return fmt.Errorf("webhooks: item signature verification failed")
	}
	return nil
}

// SignItem computes the signature the gateway would attach to the item.
// Tests and fixtures use it to build verifiable notifications.
func (v ItemHMACVerifier) SignItem(item NotificationItem) (string, error) {
	key, err := hex.DecodeString(strings.TrimSpace(v.Key))
	if err != nil {
		return "", fmt.Errorf("webhooks: decode hmac key: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(itemSigningPayload(item)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func itemSigningPayload(item NotificationItem) string {
	fields := []string{
		item.PSPReference,
		item.OriginalReference,
		item.MerchantAccountCode,
		item.MerchantReference,
		strconv.FormatInt(item.Amount.Value, 10),
		item.Amount.Currency,
		item.EventCode,
		strconv.FormatBool(item.IsSuccess()),
	}
	escaped := make([]string, 0, len(fields))
	for _, field := range fields {
		escaped = append(escaped, escapeSigningField(field))
	}
	return strings.Join(escaped, ":")
}

func escapeSigningField(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, ":", `\:`)
}

// NewGatewayWebhookTemplate wires the standard verification stack for the
// payment gateway channel: basic auth on the transport and an HMAC signature
// on every item.
func NewGatewayWebhookTemplate(username, password, hmacKey string) WebhookTemplate {
	template := WebhookTemplate{
		Source: DefaultSource,
		Verifier: BasicAuthVerifier{
			Username: strings.TrimSpace(username),
			Password: password,
		},
	}
	if strings.TrimSpace(hmacKey) != "" {
		template.ItemVerifier = ItemHMACVerifier{Key: strings.TrimSpace(hmacKey)}
	}
	return template
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return value
	}
	for candidate, value := range headers {
		if strings.EqualFold(candidate, key) {
			return value
		}
	}
	return ""
}
