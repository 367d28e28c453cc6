package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"commodity-market-go/internal/ledger"
	"commodity-market-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	db    *gorm.DB
	store *ledger.Store
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db, store: ledger.NewStore(db)}
}

// StatusResponse is the structure for the /api/status endpoint.
type StatusResponse struct {
	Items           int64   `json:"items"`
	OutstandingDebt float64 `json:"outstanding_debt"`
	InterestPaid    float64 `json:"interest_paid"`
	CPI             float64 `json:"cpi"`
}

// StatusHandler summarizes the market and lending state.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	var itemCount int64
	if err := h.db.Model(&models.Item{}).Count(&itemCount).Error; err != nil {
		h.log.Error("Failed to count items", zap.Error(err))
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}

	debt, err := h.store.TotalOutstandingDebt()
	if err != nil {
		h.log.Error("Failed to sum outstanding debt", zap.Error(err))
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}

	interest, err := h.store.TotalInterestPaid()
	if err != nil {
		h.log.Error("Failed to sum interest paid", zap.Error(err))
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		Items:           itemCount,
		OutstandingDebt: debt,
		InterestPaid:    interest,
	}
	if history, err := h.store.CPIHistory(1); err == nil && len(history) > 0 {
		response.CPI = history[0].Value
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ItemsHandler returns the item catalog with current prices.
func (h *APIHandler) ItemsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.Items()
	if err != nil {
		h.log.Error("Failed to get items from database", zap.Error(err))
		http.Error(w, "Failed to get items", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// TradesHandler returns recent trades, most recent first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	trades, err := h.store.RecentTrades(limit)
	if err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}
