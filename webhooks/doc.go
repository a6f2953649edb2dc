// Package webhooks receives, verifies, and dispatches gateway notification
// webhooks.
//
// Delivery processing is tracked per notification item in a ledger:
// pending -> processed|retry_ready -> processed|dead. Redelivered envelopes
// dedupe against the ledger, so the gateway can retry aggressively without
// double-moving orders.
package webhooks
