// README: Pricing handlers (quote lookup and table listing).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/modules/pricing"
	"bagdrop/internal/types"
)

type PricingHandler struct {
	pricing *pricing.Service
}

func NewPricingHandler(svc *pricing.Service) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

// Quote always answers 200; a missing fee is reported in the status field.
func (h *PricingHandler) Quote(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		writeError(c, http.StatusBadRequest, "address is required")
		return
	}
	writeJSON(c, http.StatusOK, h.pricing.Quote(c.Request.Context(), address))
}

type entryView struct {
	City  string      `json:"city"`
	Price types.Money `json:"price"`
}

func (h *PricingHandler) List(c *gin.Context) {
	entries, err := h.pricing.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{City: e.City, Price: e.Price})
	}
	writeJSON(c, http.StatusOK, out)
}
