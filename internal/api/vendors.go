package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
	"github.com/mbirkedal/vendorledger/internal/domain/vendor"
)

type vendorResponse struct {
	ID                 int64    `json:"id"`
	Name               string   `json:"name"`
	Nicknames          []string `json:"nicknames"`
	Domain             string   `json:"domain,omitempty"`
	Description        string   `json:"description,omitempty"`
	InvoicingCountry   string   `json:"invoicing_country,omitempty"`
	DefaultCurrency    string   `json:"default_currency,omitempty"`
	DefaultProductType string   `json:"default_product_type,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

func toVendorResponse(v model.Vendor) vendorResponse {
	nicknames := v.Nicknames
	if nicknames == nil {
		nicknames = []string{}
	}
	return vendorResponse{
		ID:                 v.ID,
		Name:               v.Name,
		Nicknames:          nicknames,
		Domain:             v.Domain,
		Description:        v.Description,
		InvoicingCountry:   v.InvoicingCountry,
		DefaultCurrency:    v.DefaultCurrency,
		DefaultProductType: v.DefaultProductType,
		CreatedAt:          v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          v.UpdatedAt.Format(time.RFC3339),
	}
}

// listVendors handles GET /api/vendors.
func (s *Server) listVendors(c *gin.Context) {
	vendors, err := s.repo.ListVendors(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list vendors", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list vendors"})
		return
	}

	out := make([]vendorResponse, 0, len(vendors))
	for _, v := range vendors {
		out = append(out, toVendorResponse(v))
	}
	c.JSON(http.StatusOK, gin.H{"vendors": out, "count": len(out)})
}

// updateVendor handles PUT /api/vendors/:id for manual corrections from the
// dashboard.
func (s *Server) updateVendor(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor id"})
		return
	}

	var req struct {
		Name               *string  `json:"name"`
		Nicknames          []string `json:"nicknames"`
		Domain             *string  `json:"domain"`
		Description        *string  `json:"description"`
		InvoicingCountry   *string  `json:"invoicing_country"`
		DefaultCurrency    *string  `json:"default_currency"`
		DefaultProductType *string  `json:"default_product_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	existing, err := s.repo.GetVendor(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, vendor.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vendor not found"})
			return
		}
		s.logger.Error("failed to load vendor", "vendor_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load vendor"})
		return
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Nicknames != nil {
		existing.Nicknames = req.Nicknames
	}
	if req.Domain != nil {
		existing.Domain = *req.Domain
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.InvoicingCountry != nil {
		existing.InvoicingCountry = *req.InvoicingCountry
	}
	if req.DefaultCurrency != nil {
		existing.DefaultCurrency = *req.DefaultCurrency
	}
	if req.DefaultProductType != nil {
		existing.DefaultProductType = *req.DefaultProductType
	}

	if err := s.repo.UpdateVendor(c.Request.Context(), existing); err != nil {
		if errors.Is(err, vendor.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "vendor name already taken"})
			return
		}
		s.logger.Error("failed to update vendor", "vendor_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update vendor"})
		return
	}

	c.JSON(http.StatusOK, toVendorResponse(*existing))
}

// deleteVendors handles DELETE /api/vendors. Transactions that referenced
// the deleted vendors keep existing with a nullified vendor reference.
func (s *Server) deleteVendors(c *gin.Context) {
	var req struct {
		IDs []int64 `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids are required"})
		return
	}

	deleted, err := s.repo.DeleteVendors(c.Request.Context(), req.IDs)
	if err != nil {
		s.logger.Error("failed to delete vendors", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete vendors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// listEnrichments handles GET /api/vendors/:id/enrichments.
func (s *Server) listEnrichments(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor id"})
		return
	}

	enrichments, err := s.repo.ListEnrichmentsByVendor(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("failed to list enrichments", "vendor_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list enrichments"})
		return
	}

	type enrichmentResponse struct {
		ID         int64   `json:"id"`
		VendorID   int64   `json:"vendor_id"`
		Source     string  `json:"source"`
		Payload    string  `json:"payload"`
		Confidence float64 `json:"confidence"`
		CreatedAt  string  `json:"created_at"`
	}
	out := make([]enrichmentResponse, 0, len(enrichments))
	for _, e := range enrichments {
		out = append(out, enrichmentResponse{
			ID:         e.ID,
			VendorID:   e.VendorID,
			Source:     e.Source,
			Payload:    e.Payload,
			Confidence: e.Confidence,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"enrichments": out, "count": len(out)})
}
