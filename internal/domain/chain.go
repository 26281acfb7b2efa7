package domain

import (
	"context"
	"math/big"
)

// ChainReader performs read-only queries against the betting contract.
type ChainReader interface {
	CurrentRoundID(ctx context.Context) (uint64, error)
	GetRound(ctx context.Context, id uint64) (Round, error)
	GetUserBet(ctx context.Context, id uint64, user string) (UserBet, error)
	FeeBps(ctx context.Context) (uint64, error)
	Initialized(ctx context.Context) (bool, error)
	Balance(ctx context.Context, addr string) (*big.Int, error)
}

// TxReceipt describes a confirmed contract transaction.
type TxReceipt struct {
	Hash    string `json:"hash"`
	Block   uint64 `json:"block"`
	GasUsed uint64 `json:"gasUsed"`
}

// ChainWriter submits keeper-signed transactions and waits for them to be
// mined. A reverted transaction returns ErrTxReverted.
type ChainWriter interface {
	Address() string
	Initialize(ctx context.Context, admin string, feeBps uint16, treasury string) (TxReceipt, error)
	StartRound(ctx context.Context, startPrice Price, durationSecs uint64) (TxReceipt, error)
	Settle(ctx context.Context, roundID uint64, endPrice Price) (TxReceipt, error)
	ClaimFor(ctx context.Context, roundID uint64, user string, deadline int64, sig []byte) (TxReceipt, error)
}
