package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProcessor_MissingResultIndicatorAbortsWithoutMutations(t *testing.T) {
	processor, lifecycle, orders, history := newTestProcessor()

	accepted, err := processor.Process(context.Background(), GatewayResponse{}, pendingPaymentOrder())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if accepted {
		t.Fatalf("expected rejection when response has no result indicator")
	}
	if lifecycle.advances() != 0 {
		t.Fatalf("expected no lifecycle transition, got %d", lifecycle.advances())
	}
	if len(orders.saved()) != 0 {
		t.Fatalf("expected no order writes, got %d", len(orders.saved()))
	}
	if len(history.all()) != 0 {
		t.Fatalf("expected no history writes, got %d", len(history.all()))
	}
}

func TestProcessor_AuthorisedAdvancesAssignsAndAccepts(t *testing.T) {
	processor, lifecycle, orders, history := newTestProcessor()
	quotes := &fakeQuoteDisabler{}
	events := &memoryPaymentEventStore{}
	processor.Quotes = quotes
	processor.Events = events

	resp := GatewayResponse{
		ResultCode:   "Authorised",
		PSPReference: "psp_123",
		PaymentMethod: PaymentMethodInfo{
			Brand: "visa",
			Type:  "scheme",
		},
	}
	accepted, err := processor.Process(context.Background(), resp, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("process authorised: %v", err)
	}
	if !accepted {
		t.Fatalf("expected authorised response to be accepted")
	}
	if lifecycle.advances() != 1 {
		t.Fatalf("expected one advance to new, got %d", lifecycle.advances())
	}

	final, ok := orders.last()
	if !ok {
		t.Fatalf("expected the order to be persisted")
	}
	if final.Status != OrderStatusNew {
		t.Fatalf("expected final status %q, got %q", OrderStatusNew, final.Status)
	}
	if final.Payment.TransactionID != "psp_123" ||
		final.Payment.LastTransactionID != "psp_123" ||
		final.Payment.CardTransactionID != "psp_123" {
		t.Fatalf("expected transaction ids assigned from psp reference, got %+v", final.Payment)
	}
	if final.Payment.ResultCode != ResultCodeAuthorised {
		t.Fatalf("expected result code %q, got %q", ResultCodeAuthorised, final.Payment.ResultCode)
	}
	if got := quotes.disabledQuotes(); len(got) != 1 || got[0] != "quote_9" {
		t.Fatalf("expected quote_9 disabled, got %v", got)
	}

	entries := history.all()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	comment := entries[0].Comment
	if !strings.Contains(comment, "result_code: Authorised") ||
		!strings.Contains(comment, "psp_reference: psp_123") ||
		!strings.Contains(comment, "payment_method: visa") {
		t.Fatalf("unexpected audit comment %q", comment)
	}

	recorded := events.all()
	if len(recorded) != 1 {
		t.Fatalf("expected one payment event, got %d", len(recorded))
	}
	if !recorded[0].Accepted || recorded[0].ResultCode != ResultCodeAuthorised {
		t.Fatalf("unexpected payment event %+v", recorded[0])
	}
}

func TestProcessor_POSSuccessBehavesLikeAuthorised(t *testing.T) {
	processor, lifecycle, orders, _ := newTestProcessor()

	resp := GatewayResponse{ResultCode: "Success", PSPReference: "psp_pos"}
	accepted, err := processor.Process(context.Background(), resp, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("process pos success: %v", err)
	}
	if !accepted {
		t.Fatalf("expected pos success to be accepted")
	}
	if lifecycle.advances() != 1 {
		t.Fatalf("expected one advance, got %d", lifecycle.advances())
	}
	final, _ := orders.last()
	if final.Payment.TransactionID != "psp_pos" {
		t.Fatalf("expected transaction id from psp reference, got %q", final.Payment.TransactionID)
	}
}

func TestProcessor_ShopperActionCodesSkipPreTransition(t *testing.T) {
	for _, code := range []string{"RedirectShopper", "IdentifyShopper", "ChallengeShopper"} {
		t.Run(code, func(t *testing.T) {
			processor, lifecycle, orders, _ := newTestProcessor()

			accepted, err := processor.Process(context.Background(), GatewayResponse{ResultCode: code}, pendingPaymentOrder())
			if err != nil {
				t.Fatalf("process %s: %v", code, err)
			}
			if !accepted {
				t.Fatalf("expected %s to be accepted", code)
			}
			if lifecycle.advances() != 0 {
				t.Fatalf("expected no advance for %s, got %d", code, lifecycle.advances())
			}
			final, _ := orders.last()
			if final.Status != OrderStatusPendingPayment {
				t.Fatalf("expected order to stay pending_payment, got %q", final.Status)
			}
		})
	}
}

func TestProcessor_PendingReconfirmsAndAppendsContextComment(t *testing.T) {
	processor, lifecycle, orders, history := newTestProcessor()

	resp := GatewayResponse{
		ResultCode:    "Pending",
		PaymentMethod: PaymentMethodInfo{Type: "bankTransfer_IBAN"},
	}
	accepted, err := processor.Process(context.Background(), resp, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if !accepted {
		t.Fatalf("expected pending to be accepted")
	}
	if lifecycle.advances() != 1 {
		t.Fatalf("expected the reconfirmation advance, got %d", lifecycle.advances())
	}
	final, _ := orders.last()
	if final.Status != OrderStatusNew {
		t.Fatalf("expected reconfirmed order in new, got %q", final.Status)
	}

	entries := history.all()
	if len(entries) != 2 {
		t.Fatalf("expected context comment plus audit entry, got %d", len(entries))
	}
	if entries[0].Comment != "waiting for the shopper to transfer the funds" {
		t.Fatalf("unexpected pending comment %q", entries[0].Comment)
	}
	if !strings.Contains(entries[1].Comment, "result_code: Pending") {
		t.Fatalf("expected audit entry last, got %q", entries[1].Comment)
	}
}

func TestProcessor_DoublePendingProcessingIsSafe(t *testing.T) {
	processor, lifecycle, orders, _ := newTestProcessor()

	resp := GatewayResponse{
		ResultCode:    "Pending",
		PaymentMethod: PaymentMethodInfo{Type: "bankTransfer_IBAN"},
	}
	if _, err := processor.Process(context.Background(), resp, pendingPaymentOrder()); err != nil {
		t.Fatalf("first process: %v", err)
	}
	evolved, _ := orders.last()

	accepted, err := processor.Process(context.Background(), resp, evolved)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !accepted {
		t.Fatalf("expected replayed pending to stay accepted")
	}
	final, _ := orders.last()
	if final.Status != OrderStatusNew {
		t.Fatalf("expected order to stay in new, got %q", final.Status)
	}
	if lifecycle.cancels() != 0 {
		t.Fatalf("expected no cancels on replay, got %d", lifecycle.cancels())
	}
	if lifecycle.advances() != 2 {
		t.Fatalf("expected one advance per run, got %d", lifecycle.advances())
	}
}

func TestProcessor_ReceivedRejectsAlipayHK(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		accepted bool
	}{
		{name: "alipay hk is rejected", method: "alipay_hk", accepted: false},
		{name: "alipay hk variants are rejected", method: "alipay_hk_web", accepted: false},
		{name: "plain alipay is accepted", method: "alipay", accepted: true},
		{name: "voucher is accepted", method: "multibanco", accepted: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			processor, lifecycle, _, _ := newTestProcessor()

			resp := GatewayResponse{
				ResultCode:    "Received",
				PaymentMethod: PaymentMethodInfo{Type: tc.method},
			}
			accepted, err := processor.Process(context.Background(), resp, pendingPaymentOrder())
			if err != nil {
				t.Fatalf("process received: %v", err)
			}
			if accepted != tc.accepted {
				t.Fatalf("expected accepted=%v for %s, got %v", tc.accepted, tc.method, accepted)
			}
			if lifecycle.advances() != 1 {
				t.Fatalf("expected received to advance regardless of outcome, got %d", lifecycle.advances())
			}
		})
	}
}

func TestProcessor_RefusedCancelsCancellableOrder(t *testing.T) {
	processor, lifecycle, orders, _ := newTestProcessor()

	accepted, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Refused"}, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("process refused: %v", err)
	}
	if accepted {
		t.Fatalf("expected refused to be rejected")
	}
	if lifecycle.advances() != 1 {
		t.Fatalf("expected the pre-transition advance, got %d", lifecycle.advances())
	}
	if lifecycle.cancels() != 1 {
		t.Fatalf("expected one cancel, got %d", lifecycle.cancels())
	}
	final, _ := orders.last()
	if final.Status != OrderStatusCanceled {
		t.Fatalf("expected canceled order, got %q", final.Status)
	}
}

func TestProcessor_RefusedLeavesNonCancellableOrder(t *testing.T) {
	processor, lifecycle, orders, _ := newTestProcessor()
	lifecycle.cancellable = false

	accepted, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Refused"}, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("process refused: %v", err)
	}
	if accepted {
		t.Fatalf("expected refused to be rejected")
	}
	if lifecycle.cancels() != 0 {
		t.Fatalf("expected no cancel on non-cancellable order, got %d", lifecycle.cancels())
	}
	final, _ := orders.last()
	if final.Status != OrderStatusNew {
		t.Fatalf("expected order left in new, got %q", final.Status)
	}
}

func TestProcessor_CancelledCancelsOrder(t *testing.T) {
	processor, lifecycle, _, _ := newTestProcessor()

	accepted, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Cancelled"}, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("process cancelled: %v", err)
	}
	if accepted {
		t.Fatalf("expected cancelled to be rejected")
	}
	if lifecycle.cancels() != 1 {
		t.Fatalf("expected one cancel, got %d", lifecycle.cancels())
	}
}

func TestProcessor_ErrorCodeRejectsWithoutCancel(t *testing.T) {
	processor, lifecycle, orders, _ := newTestProcessor()

	accepted, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Error"}, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("process error code: %v", err)
	}
	if accepted {
		t.Fatalf("expected error code to be rejected")
	}
	if lifecycle.cancels() != 0 {
		t.Fatalf("expected no cancel for error code, got %d", lifecycle.cancels())
	}
	final, _ := orders.last()
	if final.Status != OrderStatusNew {
		t.Fatalf("expected pre-transition to still run, got %q", final.Status)
	}
}

func TestProcessor_UnknownCodeRunsPipelineAndRejects(t *testing.T) {
	processor, lifecycle, orders, history := newTestProcessor()
	state := &fakeTransientState{}
	processor.StateData = state

	resp := GatewayResponse{ResultCode: "SomethingNew", PSPReference: "psp_777"}
	accepted, err := processor.Process(context.Background(), resp, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("unknown codes must not error: %v", err)
	}
	if accepted {
		t.Fatalf("expected unknown code to be rejected")
	}
	if lifecycle.advances() != 1 {
		t.Fatalf("expected the pre-transition for an unknown code, got %d", lifecycle.advances())
	}
	if lifecycle.cancels() != 0 {
		t.Fatalf("expected no cancel for an unknown code, got %d", lifecycle.cancels())
	}
	if got := state.clearedQuotes(); len(got) != 1 || got[0] != "quote_9" {
		t.Fatalf("expected transient state cleared, got %v", got)
	}

	final, _ := orders.last()
	if final.Payment.ResultCode != ResultCodeError {
		t.Fatalf("expected normalized error result, got %q", final.Payment.ResultCode)
	}
	entries := history.all()
	if len(entries) != 1 || !strings.Contains(entries[0].Comment, "result_code: SomethingNew") {
		t.Fatalf("expected audit entry carrying the raw code, got %+v", entries)
	}
}

func TestProcessor_AuthResultFallbackResolvesCode(t *testing.T) {
	processor, _, orders, _ := newTestProcessor()

	resp := GatewayResponse{AuthResult: "Authorised", PSPReference: "psp_legacy"}
	accepted, err := processor.Process(context.Background(), resp, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("process legacy auth result: %v", err)
	}
	if !accepted {
		t.Fatalf("expected legacy authorised to be accepted")
	}
	final, _ := orders.last()
	if final.Payment.ResultCode != ResultCodeAuthorised {
		t.Fatalf("expected authorised result, got %q", final.Payment.ResultCode)
	}
}

func TestProcessor_VaultFailureIsSwallowed(t *testing.T) {
	processor, _, _, _ := newTestProcessor()
	vault := &fakeVault{recordErr: fmt.Errorf("vault down")}
	processor.Vault = vault

	resp := GatewayResponse{
		ResultCode: "Authorised",
		AdditionalData: map[string]any{
			"recurring.recurringDetailReference": "token_1",
		},
	}
	accepted, err := processor.Process(context.Background(), resp, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("vault failures must not abort processing: %v", err)
	}
	if !accepted {
		t.Fatalf("expected authorised to stay accepted despite vault failure")
	}
}

func TestProcessor_VaultSkippedWithoutToken(t *testing.T) {
	processor, _, _, _ := newTestProcessor()
	vault := &fakeVault{}
	processor.Vault = vault

	resp := GatewayResponse{ResultCode: "Authorised"}
	if _, err := processor.Process(context.Background(), resp, pendingPaymentOrder()); err != nil {
		t.Fatalf("process authorised: %v", err)
	}
	if vault.count() != 0 {
		t.Fatalf("expected vault untouched without a token, got %d records", vault.count())
	}
}

func TestProcessor_StateClearFailureIsSwallowed(t *testing.T) {
	processor, _, _, _ := newTestProcessor()
	processor.StateData = &fakeTransientState{clearErr: fmt.Errorf("store down")}

	accepted, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Authorised"}, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("state cleanup failures must not abort processing: %v", err)
	}
	if !accepted {
		t.Fatalf("expected authorised to stay accepted despite cleanup failure")
	}
}

func TestProcessor_QuoteDisableFailureIsSwallowed(t *testing.T) {
	processor, _, _, _ := newTestProcessor()
	processor.Quotes = &fakeQuoteDisabler{disableErr: fmt.Errorf("quote service down")}

	accepted, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Authorised"}, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("quote disable failures must not abort processing: %v", err)
	}
	if !accepted {
		t.Fatalf("expected authorised to stay accepted despite quote failure")
	}
}

func TestProcessor_EventAppendFailureIsSwallowed(t *testing.T) {
	processor, _, _, _ := newTestProcessor()
	processor.Events = &memoryPaymentEventStore{appendErr: fmt.Errorf("events down")}

	accepted, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Authorised"}, pendingPaymentOrder())
	if err != nil {
		t.Fatalf("event append failures must not abort processing: %v", err)
	}
	if !accepted {
		t.Fatalf("expected authorised to stay accepted despite event failure")
	}
}

func TestProcessor_HistoryFailureAborts(t *testing.T) {
	processor, _, orders, history := newTestProcessor()
	history.appendErr = fmt.Errorf("history down")

	_, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Authorised"}, pendingPaymentOrder())
	if err == nil {
		t.Fatalf("expected history failure to abort processing")
	}
	// Only the pre-transition write should have landed.
	if len(orders.saved()) != 1 {
		t.Fatalf("expected a single order write before the failure, got %d", len(orders.saved()))
	}
}

func TestProcessor_AdvanceFailureAborts(t *testing.T) {
	processor, lifecycle, orders, history := newTestProcessor()
	lifecycle.advanceErr = fmt.Errorf("lifecycle down")

	_, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Authorised"}, pendingPaymentOrder())
	if err == nil {
		t.Fatalf("expected advance failure to abort processing")
	}
	if len(orders.saved()) != 0 {
		t.Fatalf("expected no order writes after advance failure, got %d", len(orders.saved()))
	}
	if len(history.all()) != 0 {
		t.Fatalf("expected no history writes after advance failure, got %d", len(history.all()))
	}
}

func TestProcessor_CancelFailureAborts(t *testing.T) {
	processor, lifecycle, _, _ := newTestProcessor()
	lifecycle.cancelErr = fmt.Errorf("cancel down")

	_, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Refused"}, pendingPaymentOrder())
	if err == nil {
		t.Fatalf("expected cancel failure to abort processing")
	}
}

func TestProcessor_SaveFailureAborts(t *testing.T) {
	processor, _, orders, _ := newTestProcessor()
	orders.saveErr = fmt.Errorf("repository down")

	_, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Authorised"}, pendingPaymentOrder())
	if err == nil {
		t.Fatalf("expected save failure to abort processing")
	}
}

func TestProcessor_MetadataRecordingIsAdditive(t *testing.T) {
	processor, _, orders, _ := newTestProcessor()

	order := pendingPaymentOrder()
	order.Payment.PSPReference = "previous_psp"
	order.Payment.Method = "ideal"

	resp := GatewayResponse{
		ResultCode:    "RedirectShopper",
		DonationToken: "donate_1",
		Action:        map[string]any{"type": "redirect"},
	}
	if _, err := processor.Process(context.Background(), resp, order); err != nil {
		t.Fatalf("process redirect: %v", err)
	}

	final, _ := orders.last()
	if final.Payment.PSPReference != "previous_psp" {
		t.Fatalf("expected absent psp reference to keep prior value, got %q", final.Payment.PSPReference)
	}
	if final.Payment.Method != "ideal" {
		t.Fatalf("expected absent method to keep prior value, got %q", final.Payment.Method)
	}
	if final.Payment.DonationToken != "donate_1" {
		t.Fatalf("expected donation token recorded, got %q", final.Payment.DonationToken)
	}
	if final.Payment.Action["type"] != "redirect" {
		t.Fatalf("expected action recorded, got %v", final.Payment.Action)
	}
}

func TestProcessor_RequiresCoreCollaborators(t *testing.T) {
	processor := &Processor{}
	if _, err := processor.Process(context.Background(), GatewayResponse{ResultCode: "Authorised"}, pendingPaymentOrder()); err == nil {
		t.Fatalf("expected an error when required collaborators are missing")
	}
}
