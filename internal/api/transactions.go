package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbirkedal/vendorledger/internal/infrastructure/storage"
)

type transactionResponse struct {
	ID                 int64   `json:"id"`
	Date               string  `json:"date"`
	PostingDate        string  `json:"posting_date,omitempty"`
	Text               string  `json:"text"`
	Message            string  `json:"message,omitempty"`
	Amount             string  `json:"amount"`
	Currency           string  `json:"currency,omitempty"`
	Balance            string  `json:"balance"`
	Category           string  `json:"category"`
	CategoryConfidence float64 `json:"category_confidence"`
	VendorID           *int64  `json:"vendor_id,omitempty"`
	VendorName         string  `json:"vendor_name,omitempty"`
	VendorConfidence   float64 `json:"vendor_confidence"`
	VendorMatchSource  string  `json:"vendor_match_source"`
	BatchID            string  `json:"batch_id"`
	CreatedAt          string  `json:"created_at"`
}

func toTransactionResponse(r storage.TransactionRecord) transactionResponse {
	resp := transactionResponse{
		ID:                 r.ID,
		Date:               r.Date.Format(time.DateOnly),
		Text:               r.Text,
		Message:            r.Message,
		Amount:             r.Amount.String(),
		Currency:           r.Currency,
		Balance:            r.Balance.String(),
		Category:           r.Category,
		CategoryConfidence: r.CategoryConfidence,
		VendorID:           r.VendorID,
		VendorName:         r.VendorName,
		VendorConfidence:   r.VendorConfidence,
		VendorMatchSource:  string(r.VendorMatchSource),
		BatchID:            r.BatchID,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
	}
	if !r.PostingDate.IsZero() {
		resp.PostingDate = r.PostingDate.Format(time.RFC3339)
	}
	return resp
}

// listTransactions handles GET /api/transactions.
func (s *Server) listTransactions(c *gin.Context) {
	filters := storage.TransactionFilters{
		Category: c.Query("category"),
		BatchID:  c.Query("batch_id"),
		VendorID: queryInt64(c, "vendor_id"),
		DaysBack: queryInt(c, "days"),
		Limit:    queryInt(c, "limit"),
		Offset:   queryInt(c, "offset"),
	}

	result, err := s.repo.ListTransactions(c.Request.Context(), filters)
	if err != nil {
		s.logger.Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}

	transactions := make([]transactionResponse, 0, len(result.Transactions))
	for _, r := range result.Transactions {
		transactions = append(transactions, toTransactionResponse(r))
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"total_count":  result.TotalCount,
		"limit":        result.Limit,
		"offset":       result.Offset,
	})
}

// deleteTransactions handles DELETE /api/transactions.
func (s *Server) deleteTransactions(c *gin.Context) {
	var req struct {
		IDs []int64 `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids are required"})
		return
	}

	deleted, err := s.repo.DeleteTransactions(c.Request.Context(), req.IDs)
	if err != nil {
		s.logger.Error("failed to delete transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func queryInt(c *gin.Context, name string) int {
	n, _ := strconv.Atoi(c.Query(name))
	return n
}

func queryInt64(c *gin.Context, name string) int64 {
	n, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return n
}
