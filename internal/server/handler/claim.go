package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orionbet/orionkeeper/internal/crypto"
	"github.com/orionbet/orionkeeper/internal/keeper"
)

// ClaimService defines what the claim endpoints require.
type ClaimService interface {
	Claim(ctx context.Context, req keeper.ClaimRequest) (keeper.ClaimResult, error)
	CheckWinnings(ctx context.Context, roundID uint64, user string) (keeper.Winnings, error)
}

// ClaimHandler serves claim relaying and winnings checks.
type ClaimHandler struct {
	claims ClaimService
	logger *slog.Logger
}

func NewClaimHandler(claims ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{claims: claims, logger: logger}
}

type claimRequest struct {
	RoundID     uint64 `json:"roundId"`
	UserAddress string `json:"userAddress"`
	Deadline    int64  `json:"deadline"`
	Signature   string `json:"signature"`
}

type claimResponse struct {
	Success bool `json:"success"`
	keeper.ClaimResult
}

// Claim relays a claim the user signed with their own wallet.
// POST /api/claim {"roundId", "userAddress", "deadline", "signature"}
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	switch {
	case req.RoundID == 0:
		writeError(w, http.StatusBadRequest, "roundId is required", "")
		return
	case !common.IsHexAddress(req.UserAddress):
		writeError(w, http.StatusBadRequest, "userAddress must be a 0x address", "")
		return
	case req.Deadline <= 0 || req.Signature == "":
		writeError(w, http.StatusBadRequest, "deadline and signature are required",
			"sign Claim(uint64 roundId,address user,uint256 deadline) with your wallet")
		return
	}
	sig, err := crypto.DecodeSignature(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed signature", err.Error())
		return
	}

	res, err := h.claims.Claim(r.Context(), keeper.ClaimRequest{
		RoundID:   req.RoundID,
		User:      req.UserAddress,
		Deadline:  req.Deadline,
		Signature: sig,
	})
	if err != nil {
		writeFailure(w, r, h.logger, "claim winnings", err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Success: true, ClaimResult: res})
}

type checkWinningsRequest struct {
	UserAddress string `json:"userAddress"`
	RoundID     uint64 `json:"roundId"`
}

// CheckWinnings reports what a user can claim from a round.
// POST /api/check-winnings {"userAddress", "roundId"}
func (h *ClaimHandler) CheckWinnings(w http.ResponseWriter, r *http.Request) {
	var req checkWinningsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.RoundID == 0 || !common.IsHexAddress(req.UserAddress) {
		writeError(w, http.StatusBadRequest, "userAddress and roundId are required", "")
		return
	}
	res, err := h.claims.CheckWinnings(r.Context(), req.RoundID, req.UserAddress)
	if err != nil {
		writeFailure(w, r, h.logger, "check winnings", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
