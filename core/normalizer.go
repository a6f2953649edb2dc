package core

// Normalize maps a raw gateway result code plus its optional action and
// additional data into the response shape returned to the calling channel.
// It is a total function: any string is accepted, unknown codes collapse to
// a final Error so unrecognized gateway states never leak to shoppers.
func Normalize(rawCode string, action map[string]any, additionalData map[string]any) NormalizedResponse {
	code, known := ParseResultCode(rawCode)
	if !known {
		return NormalizedResponse{IsFinal: true, ResultCode: ResultCodeError}
	}

	switch code {
	case ResultCodeRedirectShopper,
		ResultCodeIdentifyShopper,
		ResultCodeChallengeShopper,
		ResultCodePending:
		return NormalizedResponse{
			IsFinal:    false,
			ResultCode: code,
			Action:     copyAnyMap(action),
		}
	case ResultCodePresentToShopper:
		return NormalizedResponse{
			IsFinal:    true,
			ResultCode: code,
			Action:     copyAnyMap(action),
		}
	case ResultCodeReceived:
		return NormalizedResponse{
			IsFinal:        true,
			ResultCode:     code,
			AdditionalData: copyAnyMap(additionalData),
		}
	default:
		// Authorised, Refused, Error, Cancelled, POS Success: final, bare.
		return NormalizedResponse{IsFinal: true, ResultCode: code}
	}
}

// NormalizeResponse is the GatewayResponse-shaped convenience over
// Normalize, resolving the result indicator first.
func NormalizeResponse(resp GatewayResponse) NormalizedResponse {
	raw, ok := resp.ResolveResultCode()
	if !ok {
		return NormalizedResponse{IsFinal: true, ResultCode: ResultCodeError}
	}
	return Normalize(raw, resp.Action, resp.AdditionalData)
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
