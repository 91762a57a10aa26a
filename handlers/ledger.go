package handlers

import (
	"net/http"
	"strconv"

	"sessionledger/middleware"
	"sessionledger/models"
	"sessionledger/services/ledger"

	"github.com/gin-gonic/gin"
)

// GetBalance returns the caller's current credit balance.
func GetBalance(c *gin.Context) {
	balance, err := LedgerService.Balance(c.Request.Context(), middleware.AuthenticatedUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// ListTransactions returns a page of the caller's ledger history.
func ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	txns, err := LedgerService.Transactions(c.Request.Context(), middleware.AuthenticatedUserID(c), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "page": page})
}

// CreatePurchase opens a Stripe payment intent for a credit top-up.
func CreatePurchase(c *gin.Context) {
	var input struct {
		Credits int `json:"credits" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	intent, err := PaymentService.CreatePurchase(c.Request.Context(), middleware.AuthenticatedUserID(c), input.Credits)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, intent)
}

// ConfirmPurchase settles a completed Stripe payment onto the ledger.
func ConfirmPurchase(c *gin.Context) {
	var input struct {
		IntentID string `json:"intent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	txn, err := PaymentService.ConfirmPurchase(c.Request.Context(), middleware.AuthenticatedUserID(c), input.IntentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// AdminAdjustCredits applies a manual correction to a user's balance.
func AdminAdjustCredits(c *gin.Context) {
	var input struct {
		UserID string `json:"user_id" binding:"required"`
		Amount int    `json:"amount" binding:"required"`
		Kind   string `json:"kind" binding:"required"` // "credit" or "debit"
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	op := ledger.Operation{
		UserID: input.UserID,
		Amount: input.Amount,
		Reason: models.ReasonAdminAdjustment,
	}

	var res *ledger.Result
	var err error
	switch input.Kind {
	case "credit":
		res, err = LedgerService.Credit(c.Request.Context(), op)
	case "debit":
		res, err = LedgerService.Debit(c.Request.Context(), op)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be \"credit\" or \"debit\""})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Txn)
}
