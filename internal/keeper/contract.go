package keeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// InitResult describes a contract initialisation attempt.
type InitResult struct {
	AlreadyInitialized bool   `json:"alreadyInitialized"`
	TxHash             string `json:"transactionHash,omitempty"`
	Admin              string `json:"admin,omitempty"`
	FeeBps             uint16 `json:"feeBps,omitempty"`
	Treasury           string `json:"treasury,omitempty"`
	Message            string `json:"message"`
}

// InitContract initialises the contract with the keeper as admin. It is a
// no-op on an initialised contract.
func (k *Keeper) InitContract(ctx context.Context) (InitResult, error) {
	if k.tx == nil {
		return InitResult{}, fmt.Errorf("keeper: init contract: keeper key: %w", domain.ErrNotConfigured)
	}
	ok, err := k.chain.Initialized(ctx)
	if err != nil {
		return InitResult{}, fmt.Errorf("keeper: init contract: %w", err)
	}
	if ok {
		return InitResult{AlreadyInitialized: true, Message: "contract already initialized"}, nil
	}

	admin := k.tx.Address()
	treasury := k.cfg.Treasury
	if treasury == "" {
		treasury = admin
	}
	receipt, err := k.tx.Initialize(ctx, admin, k.cfg.FeeBps, treasury)
	if err != nil {
		return InitResult{}, fmt.Errorf("keeper: init contract: %w", err)
	}
	k.logger.InfoContext(ctx, "contract initialized",
		slog.String("admin", admin),
		slog.Int("fee_bps", int(k.cfg.FeeBps)),
		slog.String("treasury", treasury),
		slog.String("tx", receipt.Hash),
	)
	k.auditLog(ctx, "contract_initialized", map[string]any{
		"admin":    admin,
		"fee_bps":  k.cfg.FeeBps,
		"treasury": treasury,
		"tx":       receipt.Hash,
	})
	return InitResult{
		TxHash:   receipt.Hash,
		Admin:    admin,
		FeeBps:   k.cfg.FeeBps,
		Treasury: treasury,
		Message:  "contract initialized",
	}, nil
}
