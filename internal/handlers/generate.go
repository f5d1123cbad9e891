package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"

	"gsw-platform/internal/mailer"
	"gsw-platform/internal/models"
	"gsw-platform/internal/speech"
)

// InternalKeyHeader authenticates calls between the webhook trigger and the
// generation endpoint.
const InternalKeyHeader = "X-Internal-Key"

// DraftGenerator produces speech drafts from a form payload.
type DraftGenerator interface {
	GenerateDrafts(ctx context.Context, formData json.RawMessage) ([]speech.Draft, error)
}

// PurchaseAccess is the slice of purchase persistence this handler needs.
type PurchaseAccess interface {
	GetByID(ctx context.Context, id string) (*models.Purchase, error)
	SetSpeechesGenerated(ctx context.Context, id string, speeches types.JSONText) error
	SetEmailsSent(ctx context.Context, id string) error
}

type GenerateHandler struct {
	Purchases   PurchaseAccess
	Generator   DraftGenerator
	Mailer      mailer.Sender
	InternalKey string
}

func NewGenerateHandler(purchases PurchaseAccess, generator DraftGenerator, sender mailer.Sender, internalKey string) *GenerateHandler {
	return &GenerateHandler{
		Purchases:   purchases,
		Generator:   generator,
		Mailer:      sender,
		InternalKey: internalKey,
	}
}

type generateRequest struct {
	PurchaseID string `json:"purchaseId" binding:"required"`
}

// GenerateSpeeches runs the downstream half of the funnel for one purchase:
// draft generation, then email delivery, flipping each completion flag as
// it lands. Re-driving the endpoint is safe: finished steps are skipped.
func (h *GenerateHandler) GenerateSpeeches(c *gin.Context) {
	key := c.GetHeader(InternalKeyHeader)
	if h.InternalKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.InternalKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid internal key"})
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	purchase, err := h.Purchases.GetByID(c.Request.Context(), req.PurchaseID)
	if err != nil {
		log.WithError(err).Error("Failed to load purchase for generation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	if purchase == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
		return
	}

	logger := log.WithFields(log.Fields{
		"purchase_id": purchase.ID,
		"reference":   purchase.CustomerReference,
	})

	if purchase.SpeechesGenerated && purchase.EmailsSent {
		logger.Info("Purchase already fully processed, nothing to do")
		c.JSON(http.StatusOK, gin.H{"generated": true, "emailed": true})
		return
	}

	var drafts []speech.Draft
	if purchase.SpeechesGenerated {
		if err := json.Unmarshal(purchase.Speeches.JSONText, &drafts); err != nil {
			logger.WithError(err).Error("Stored drafts are unreadable")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored drafts unreadable"})
			return
		}
	} else {
		drafts, err = h.Generator.GenerateDrafts(c.Request.Context(), json.RawMessage(purchase.FormData))
		if err != nil {
			logger.WithError(err).Error("Draft generation failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Draft generation failed"})
			return
		}

		raw, err := json.Marshal(drafts)
		if err != nil {
			logger.WithError(err).Error("Failed to encode drafts")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
			return
		}
		if err := h.Purchases.SetSpeechesGenerated(c.Request.Context(), purchase.ID, types.JSONText(raw)); err != nil {
			logger.WithError(err).Error("Failed to store drafts")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
			return
		}
		logger.Info("Speech drafts generated")
	}

	if err := h.Mailer.SendDrafts(c.Request.Context(), purchase.CustomerEmail, purchase.CustomerReference, drafts); err != nil {
		// The drafts are stored; delivery can be re-driven later. The
		// emails_sent flag stays false to make that visible.
		logger.WithError(err).Error("Failed to email drafts")
		c.JSON(http.StatusOK, gin.H{"generated": true, "emailed": false})
		return
	}

	if err := h.Purchases.SetEmailsSent(c.Request.Context(), purchase.ID); err != nil {
		logger.WithError(err).Warn("Drafts emailed but flag update failed")
	}
	logger.Info("Speech drafts emailed")

	c.JSON(http.StatusOK, gin.H{"generated": true, "emailed": true})
}
