package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"

	"gsw-platform/internal/checkout"
	"gsw-platform/internal/store"
)

// CheckoutOptions is the product configuration for the checkout page.
type CheckoutOptions struct {
	PriceCents  int64
	ProductName string
	SuccessURL  string
	CancelURL   string
}

type CheckoutHandler struct {
	Pending *store.PendingInputStore
	Stripe  *stripeclient.API
	Options CheckoutOptions
}

func NewCheckoutHandler(pending *store.PendingInputStore, serverKey string, opts CheckoutOptions) *CheckoutHandler {
	sc := &stripeclient.API{}
	sc.Init(serverKey, nil)

	return &CheckoutHandler{
		Pending: pending,
		Stripe:  sc,
		Options: opts,
	}
}

type createCheckoutRequest struct {
	Email    string          `json:"email" binding:"required,email"`
	FormData json.RawMessage `json:"form_data" binding:"required"`
}

// CreateCheckoutSession stores the submitted speech form as a pending input
// and opens a Stripe checkout session pointing back at it, returning the
// hosted payment page URL.
func (h *CheckoutHandler) CreateCheckoutSession(c *gin.Context) {
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	pending, err := h.Pending.Create(c.Request.Context(), types.JSONText(req.FormData), req.Email)
	if err != nil {
		log.WithError(err).Error("Failed to create pending input")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(h.Options.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(h.Options.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(req.Email),
		SuccessURL:    stripe.String(h.Options.SuccessURL),
		CancelURL:     stripe.String(h.Options.CancelURL),
	}
	params.AddMetadata(checkout.MetadataFormDataKey, pending.ID)

	sess, err := h.Stripe.CheckoutSessions.New(params)
	if err != nil {
		log.WithError(err).Error("Failed to create Stripe checkout session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment gateway error."})
		return
	}

	log.WithFields(log.Fields{
		"pending_id": pending.ID,
		"session_id": sess.ID,
	}).Info("Checkout session created")

	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}
