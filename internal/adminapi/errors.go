package adminapi

import "github.com/squeaknode/node/internal/apperrors"

// statusFor maps an apperrors.Kind onto the HTTP status an admin
// caller should see, following the taxonomy-to-status mapping idiom of
// web3-wallet-backend/internal/common/middleware.go's APIError, but
// keyed off this node's own Kind values rather than a parallel one.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.InvalidItem, apperrors.InvalidKey:
		return 400
	case apperrors.OfferNotFound:
		return 404
	case apperrors.RateLimited:
		return 429
	case apperrors.OfferExpired, apperrors.PaymentFailed, apperrors.PreimageMismatch:
		return 402
	case apperrors.PeerUnreachable, apperrors.PeerProtocolViolation:
		return 502
	case apperrors.LightningUnavailable:
		return 503
	case apperrors.Timeout:
		return 504
	case apperrors.Cancelled:
		return 499
	default:
		return 500
	}
}

// errorBody is the JSON shape of every non-2xx admin response —
// "structured error with kind + message", per this surface's contract.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func bodyFor(err error) (int, errorBody) {
	if appErr, ok := err.(*apperrors.Error); ok {
		return statusFor(appErr.Kind), errorBody{Kind: string(appErr.Kind), Message: appErr.Message}
	}
	return 500, errorBody{Kind: "internal", Message: err.Error()}
}
