package adminapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/squeaknode/node/internal/apperrors"
)

func TestBodyFor_AppError(t *testing.T) {
	err := apperrors.New(apperrors.OfferNotFound, "no such offer")
	status, body := bodyFor(err)
	assert.Equal(t, 404, status)
	assert.Equal(t, "offer_not_found", body.Kind)
	assert.Equal(t, "no such offer", body.Message)
}

func TestBodyFor_PlainError(t *testing.T) {
	status, body := bodyFor(errors.New("boom"))
	assert.Equal(t, 500, status)
	assert.Equal(t, "internal", body.Kind)
}

func TestStatusFor_RateLimited(t *testing.T) {
	assert.Equal(t, 429, statusFor(apperrors.RateLimited))
}
