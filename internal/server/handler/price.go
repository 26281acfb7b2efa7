package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// PriceService defines what the price handler requires.
type PriceService interface {
	Latest(ctx context.Context) (domain.PriceQuote, error)
	AtTime(ctx context.Context, unixSecs int64) (domain.PriceQuote, error)
}

// PriceHandler proxies the price oracle.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

// Latest returns the current price.
// GET /api/price
func (h *PriceHandler) Latest(w http.ResponseWriter, r *http.Request) {
	q, err := h.prices.Latest(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "fetch price", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type historicalPriceRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// Historical returns the price published at a unix timestamp.
// POST /api/price {"timestamp": 1700000000}
func (h *PriceHandler) Historical(w http.ResponseWriter, r *http.Request) {
	var req historicalPriceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.Timestamp <= 0 {
		writeError(w, http.StatusBadRequest, "timestamp is required", "")
		return
	}
	q, err := h.prices.AtTime(r.Context(), req.Timestamp)
	if err != nil {
		writeFailure(w, r, h.logger, "fetch historical price", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
