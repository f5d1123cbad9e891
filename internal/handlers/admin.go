package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gsw-platform/internal/store"
)

// AdminHandler serves the purchases dashboard.
type AdminHandler struct {
	Purchases *store.PurchaseStore
}

func NewAdminHandler(purchases *store.PurchaseStore) *AdminHandler {
	return &AdminHandler{Purchases: purchases}
}

// ListPurchases pages through purchases, newest first. Query params: limit
// (default 20, max 100) and offset.
func (h *AdminHandler) ListPurchases(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	purchases, err := h.Purchases.List(c.Request.Context(), limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to list purchases")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch purchases"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"purchases": purchases,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetPurchase looks a purchase up by its customer reference code.
func (h *AdminHandler) GetPurchase(c *gin.Context) {
	reference := c.Param("reference")

	purchase, err := h.Purchases.GetByReference(c.Request.Context(), reference)
	if err != nil {
		log.WithError(err).Error("Failed to get purchase")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	if purchase == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
		return
	}

	c.JSON(http.StatusOK, purchase)
}
