package core

import "strings"

// methodTokenAlipayHK marks wallet payments that report Received but never
// deliver a confirmation webhook; they must not be treated as accepted.
const methodTokenAlipayHK = "alipay_hk"

type outcomeKind int

const (
	outcomeAccepted outcomeKind = iota
	outcomeRejected
	outcomeCancelOrder
)

// resultOutcome separates what a result code MEANS from what the processor
// DOES about it: the final boolean, an optional contextual audit comment,
// and flags for the side effects that apply to this code only.
type resultOutcome struct {
	kind         outcomeKind
	comment      string
	assignTxnIDs bool
	disableQuote bool
	reconfirm    bool
}

func (o resultOutcome) accepted() bool {
	return o.kind == outcomeAccepted
}

// resolveResultOutcome maps a recognized result code to its outcome. The
// registry drives the Pending comment by payment-method family; the
// gateway response supplies the method descriptor for the Received rule.
func resolveResultOutcome(code ResultCode, resp GatewayResponse, methods *MethodRegistry) resultOutcome {
	switch code {
	case ResultCodeAuthorised, ResultCodePOSSuccess:
		return resultOutcome{
			kind:         outcomeAccepted,
			assignTxnIDs: true,
			disableQuote: true,
		}
	case ResultCodePending:
		return resultOutcome{
			kind:      outcomeAccepted,
			comment:   pendingComment(resp.PaymentMethod.Type, methods),
			reconfirm: true,
		}
	case ResultCodePresentToShopper,
		ResultCodeIdentifyShopper,
		ResultCodeChallengeShopper,
		ResultCodeRedirectShopper:
		return resultOutcome{kind: outcomeAccepted}
	case ResultCodeReceived:
		if strings.Contains(strings.ToLower(resp.PaymentMethod.Type), methodTokenAlipayHK) {
			return resultOutcome{kind: outcomeRejected}
		}
		return resultOutcome{kind: outcomeAccepted}
	case ResultCodeRefused, ResultCodeCancelled:
		return resultOutcome{kind: outcomeCancelOrder}
	default:
		// Recognized but terminal failure codes (Error) take the same
		// path as unknown ones: reject without touching the order state.
		return resultOutcome{kind: outcomeRejected}
	}
}

func pendingComment(methodType string, methods *MethodRegistry) string {
	family := MethodFamilyGeneric
	if methods != nil {
		if desc, ok := methods.Lookup(methodType); ok {
			family = desc.Family
		}
	}
	switch family {
	case MethodFamilyBankTransfer:
		return "waiting for the shopper to transfer the funds"
	case MethodFamilyDirectDebit:
		return "direct debit request will be forwarded to the bank at the end of the day"
	default:
		return "payment is not confirmed yet; the order is updated once the " +
			"authorisation webhook arrives and may be cancelled on an offer-closed signal"
	}
}
