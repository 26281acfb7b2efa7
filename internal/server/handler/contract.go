package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/orionbet/orionkeeper/internal/keeper"
)

// ContractService initialises the betting contract.
type ContractService interface {
	InitContract(ctx context.Context) (keeper.InitResult, error)
}

// ContractHandler serves the admin contract endpoints.
type ContractHandler struct {
	contract ContractService
	logger   *slog.Logger
}

func NewContractHandler(contract ContractService, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{contract: contract, logger: logger}
}

type initResponse struct {
	Success bool `json:"success"`
	keeper.InitResult
}

// Init initialises the contract with the keeper as admin.
// POST /api/contract/init
func (h *ContractHandler) Init(w http.ResponseWriter, r *http.Request) {
	res, err := h.contract.InitContract(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "initialize contract", err)
		return
	}
	writeJSON(w, http.StatusOK, initResponse{Success: true, InitResult: res})
}
