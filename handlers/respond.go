package handlers

import (
	"errors"
	"net/http"

	"sessionledger/services/availability"
	"sessionledger/services/booking"
	"sessionledger/services/ledger"
	"sessionledger/services/payment"
	"sessionledger/services/user"
	"sessionledger/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services used by the handlers, wired at startup.
var (
	UserService         user.Service
	BookingService      booking.Service
	AvailabilityService availability.Service
	LedgerService       ledger.Service
	PaymentService      payment.Service
)

// statusForKind maps a rejection kind to its HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case utils.RejectInvalidArgument:
		return http.StatusBadRequest
	case utils.RejectInsufficientCredits:
		return http.StatusPaymentRequired
	case utils.RejectNotAuthorized:
		return http.StatusForbidden
	case utils.RejectNotFound:
		return http.StatusNotFound
	case utils.RejectInvalidTransition, utils.RejectSlotTaken,
		utils.RejectAlreadyRefunded, utils.RejectRefundWithoutDebit:
		return http.StatusConflict
	case utils.RejectWindowViolation:
		return http.StatusUnprocessableEntity
	case utils.RejectStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError translates a service error into a JSON response. Rejections
// surface their kind and message; anything else is an opaque 500.
func respondError(c *gin.Context, err error) {
	var rej *utils.Rejection
	if errors.As(err, &rej) {
		if rej.Kind == utils.RejectStorageFailure {
			utils.GetLogger().Error("storage failure", zap.Error(err))
		}
		c.JSON(statusForKind(rej.Kind), gin.H{"error": rej.Message, "kind": rej.Kind})
		return
	}

	utils.GetLogger().Error("unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
