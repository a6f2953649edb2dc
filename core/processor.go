package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Processor consumes a gateway response and applies the order-lifecycle
// consequences: metadata recording, vault delegation, the status
// pre-transition, transient-state cleanup, per-code side effects, and the
// audit trail. Lifecycle, Orders, and History are required; the remaining
// collaborators are optional and skipped when unset.
//
// The host's lifecycle and repository must serialize writes per order id;
// the processor performs no locking of its own.
type Processor struct {
	Lifecycle OrderLifecycle
	Orders    OrderRepository
	History   HistoryLog
	Vault     VaultRecorder
	StateData TransientStateStore
	Quotes    QuoteDisabler
	Events    PaymentEventStore
	Methods   *MethodRegistry
	Logger    Logger
	Now       func() time.Time
}

// Process runs the ordered decision pipeline for one gateway response.
// The boolean is the storefront-facing outcome. An error is returned only
// for a response without a result indicator (no order mutation happens) or
// when a required collaborator fails; best-effort collaborator failures
// are logged and swallowed.
func (p *Processor) Process(ctx context.Context, resp GatewayResponse, order Order) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("core: processor is nil")
	}
	if p.Lifecycle == nil || p.Orders == nil || p.History == nil {
		return false, fmt.Errorf("core: processor requires lifecycle, orders, and history collaborators")
	}

	raw, ok := resp.ResolveResultCode()
	if !ok {
		p.logError("gateway response carries no result indicator", "order_id", order.ID)
		return false, ErrInvalidResponse
	}
	code, known := ParseResultCode(raw)
	actionRequired := known && RequiresShopperAction(code)
	normalized := code
	if !known {
		normalized = ResultCodeError
	}

	// Response metadata is recorded before any branching so that every
	// path, including unknown codes, leaves a trace on the payment.
	recordResponseMetadata(&order.Payment, resp)

	if p.Vault != nil {
		if details := ExtractRecurringDetails(resp); details.HasToken() {
			if err := p.Vault.RecordRecurringDetails(ctx, order, details); err != nil {
				p.logError("vault persistence failed",
					"order_id", order.ID,
					"result_code", raw,
					"error", err,
				)
			}
		}
	}

	// Codes outside the shopper-action set advance the order out of
	// pending_payment now, ahead of the per-code handling: the
	// authorisation webhook that follows must find the order in a state
	// that accepts it.
	if !actionRequired {
		advanced, err := p.advanceAndPersist(ctx, order)
		if err != nil {
			return false, err
		}
		order = advanced
	}

	if p.StateData != nil && strings.TrimSpace(order.QuoteID) != "" {
		if err := p.StateData.Clear(ctx, order.QuoteID, normalized); err != nil {
			p.logError("transient state cleanup failed",
				"quote_id", order.QuoteID,
				"result_code", raw,
				"error", err,
			)
		}
	}

	outcome := resultOutcome{kind: outcomeRejected}
	if known {
		outcome = resolveResultOutcome(code, resp, p.Methods)
	} else {
		p.logError("unhandled gateway result code",
			"result_code", raw,
			"order_id", order.ID,
			"additional_data", RedactSensitiveMap(resp.AdditionalData),
		)
	}

	updated, err := p.applyOutcome(ctx, outcome, resp, order)
	if err != nil {
		return false, err
	}
	order = updated

	order.Payment.ResultCode = normalized
	if err := p.appendAudit(ctx, raw, resp, order); err != nil {
		return false, err
	}
	if _, err := p.Orders.Save(ctx, order); err != nil {
		return false, fmt.Errorf("core: persist order %s: %w", order.ID, err)
	}
	p.recordPaymentEvent(ctx, raw, resp, order, outcome)

	return outcome.accepted(), nil
}

func (p *Processor) applyOutcome(ctx context.Context, outcome resultOutcome, resp GatewayResponse, order Order) (Order, error) {
	if outcome.assignTxnIDs && strings.TrimSpace(resp.PSPReference) != "" {
		order.Payment.TransactionID = resp.PSPReference
		order.Payment.LastTransactionID = resp.PSPReference
		order.Payment.CardTransactionID = resp.PSPReference
	}

	if outcome.disableQuote && p.Quotes != nil && strings.TrimSpace(order.QuoteID) != "" {
		if err := p.Quotes.DisableQuote(ctx, order.QuoteID); err != nil {
			p.logError("quote disable failed",
				"quote_id", order.QuoteID,
				"order_id", order.ID,
				"error", err,
			)
		}
	}

	if outcome.reconfirm {
		advanced, err := p.advanceAndPersist(ctx, order)
		if err != nil {
			return order, err
		}
		order = advanced
	}

	if strings.TrimSpace(outcome.comment) != "" {
		entry := HistoryEntry{
			OrderID:     order.ID,
			IncrementID: order.IncrementID,
			Status:      order.Status,
			Comment:     outcome.comment,
			CreatedAt:   p.now(),
		}
		if err := p.History.Append(ctx, entry); err != nil {
			return order, fmt.Errorf("core: append history for order %s: %w", order.ID, err)
		}
	}

	if outcome.kind == outcomeCancelOrder {
		if p.Lifecycle.IsCancellable(order) {
			cancelled, err := p.Lifecycle.Cancel(ctx, order)
			if err != nil {
				return order, fmt.Errorf("core: cancel order %s: %w", order.ID, err)
			}
			order = cancelled
		} else {
			p.logInfo("order is not cancellable",
				"order_id", order.ID,
				"status", string(order.Status),
			)
		}
	}

	return order, nil
}

func (p *Processor) advanceAndPersist(ctx context.Context, order Order) (Order, error) {
	advanced, err := p.Lifecycle.AdvanceToNew(ctx, order)
	if err != nil {
		return order, fmt.Errorf("core: advance order %s: %w", order.ID, err)
	}
	saved, err := p.Orders.Save(ctx, advanced)
	if err != nil {
		return order, fmt.Errorf("core: persist order %s: %w", order.ID, err)
	}
	return saved, nil
}

func (p *Processor) appendAudit(ctx context.Context, raw string, resp GatewayResponse, order Order) error {
	entry := HistoryEntry{
		OrderID:     order.ID,
		IncrementID: order.IncrementID,
		Status:      order.Status,
		Comment:     buildAuditComment(raw, resp),
		CreatedAt:   p.now(),
	}
	if err := p.History.Append(ctx, entry); err != nil {
		return fmt.Errorf("core: append history for order %s: %w", order.ID, err)
	}
	return nil
}

func (p *Processor) recordPaymentEvent(ctx context.Context, raw string, resp GatewayResponse, order Order, outcome resultOutcome) {
	if p.Events == nil {
		return
	}
	event := PaymentEvent{
		OrderID:       order.ID,
		IncrementID:   order.IncrementID,
		QuoteID:       order.QuoteID,
		ResultCode:    order.Payment.ResultCode,
		Accepted:      outcome.accepted(),
		Comment:       buildAuditComment(raw, resp),
		PSPReference:  resp.PSPReference,
		PaymentMethod: resp.PaymentMethod.Descriptor(),
		CreatedAt:     p.now(),
	}
	if _, err := p.Events.Append(ctx, event); err != nil {
		p.logError("payment event append failed",
			"order_id", order.ID,
			"result_code", raw,
			"error", err,
		)
	}
}

// recordResponseMetadata copies response fields onto the payment record.
// Writes are additive: absent fields leave previously recorded values.
func recordResponseMetadata(payment *PaymentRecord, resp GatewayResponse) {
	if payment == nil {
		return
	}
	if ref := strings.TrimSpace(resp.PSPReference); ref != "" {
		payment.PSPReference = ref
	}
	if method := strings.TrimSpace(resp.PaymentMethod.Type); method != "" {
		payment.Method = method
	}
	if len(resp.Action) > 0 {
		payment.Action = copyAnyMap(resp.Action)
	}
	if len(resp.AdditionalData) > 0 {
		payment.AdditionalData = copyAnyMap(resp.AdditionalData)
	}
	if len(resp.Details) > 0 {
		details := make([]map[string]any, 0, len(resp.Details))
		for _, detail := range resp.Details {
			details = append(details, copyAnyMap(detail))
		}
		payment.Details = details
	}
	if token := strings.TrimSpace(resp.DonationToken); token != "" {
		payment.DonationToken = token
	}
}

func buildAuditComment(raw string, resp GatewayResponse) string {
	parts := []string{fmt.Sprintf("result_code: %s", strings.TrimSpace(raw))}
	if ref := strings.TrimSpace(resp.PSPReference); ref != "" {
		parts = append(parts, fmt.Sprintf("psp_reference: %s", ref))
	}
	if method := resp.PaymentMethod.Descriptor(); method != "" {
		parts = append(parts, fmt.Sprintf("payment_method: %s", method))
	}
	return strings.Join(parts, ", ")
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) logInfo(msg string, args ...any) {
	if p == nil || p.Logger == nil {
		return
	}
	p.Logger.Info(msg, args...)
}

func (p *Processor) logError(msg string, args ...any) {
	if p == nil || p.Logger == nil {
		return
	}
	p.Logger.Error(msg, args...)
}
