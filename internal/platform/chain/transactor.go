package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// Backend is the subset of ethclient.Client used to submit transactions.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxObserver records confirmation latency.
type TxObserver interface {
	TxConfirmed(method string, d time.Duration)
}

// TransactorConfig controls transaction submission.
type TransactorConfig struct {
	ChainID      int64
	Contract     string
	GasLimit     uint64        // 0 estimates per call
	Timeout      time.Duration // submission to receipt
	PollInterval time.Duration
}

// Transactor signs contract calls with the keeper key and waits for them
// to be mined. Submissions are serialised so nonces never collide.
type Transactor struct {
	backend  Backend
	abi      abi.ABI
	contract common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	from     common.Address
	cfg      TransactorConfig
	observer TxObserver
	logger   *slog.Logger

	mu sync.Mutex
}

var _ domain.ChainWriter = (*Transactor)(nil)

// NewTransactor creates a Transactor. observer may be nil.
func NewTransactor(backend Backend, key *ecdsa.PrivateKey, cfg TransactorConfig, observer TxObserver, logger *slog.Logger) (*Transactor, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("chain: invalid contract address %q: %w", cfg.Contract, domain.ErrNotConfigured)
	}
	if key == nil {
		return nil, fmt.Errorf("chain: keeper key: %w", domain.ErrNotConfigured)
	}
	parsed, err := ContractABI()
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Transactor{
		backend:  backend,
		abi:      parsed,
		contract: common.HexToAddress(cfg.Contract),
		chainID:  big.NewInt(cfg.ChainID),
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		cfg:      cfg,
		observer: observer,
		logger:   logger.With(slog.String("component", "transactor")),
	}, nil
}

// Address returns the keeper account.
func (t *Transactor) Address() string { return t.from.Hex() }

func (t *Transactor) Initialize(ctx context.Context, admin string, feeBps uint16, treasury string) (domain.TxReceipt, error) {
	return t.transact(ctx, "initialize", common.HexToAddress(admin), feeBps, common.HexToAddress(treasury))
}

func (t *Transactor) StartRound(ctx context.Context, startPrice domain.Price, durationSecs uint64) (domain.TxReceipt, error) {
	return t.transact(ctx, "startRound", uint64(startPrice), durationSecs)
}

func (t *Transactor) Settle(ctx context.Context, roundID uint64, endPrice domain.Price) (domain.TxReceipt, error) {
	return t.transact(ctx, "settle", roundID, uint64(endPrice))
}

func (t *Transactor) ClaimFor(ctx context.Context, roundID uint64, user string, deadline int64, sig []byte) (domain.TxReceipt, error) {
	return t.transact(ctx, "claimFor", roundID, common.HexToAddress(user), big.NewInt(deadline), sig)
}

func (t *Transactor) transact(ctx context.Context, method string, args ...any) (domain.TxReceipt, error) {
	data, err := t.abi.Pack(method, args...)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	submitted := time.Now()
	tx, err := t.submit(ctx, data)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: submit %s: %w", method, err)
	}
	t.logger.Info("transaction submitted",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("nonce", tx.Nonce()),
	)

	receipt, err := t.waitMined(ctx, tx.Hash())
	if err != nil {
		return domain.TxReceipt{Hash: tx.Hash().Hex()}, fmt.Errorf("chain: %s %s: %w", method, tx.Hash().Hex(), err)
	}
	if t.observer != nil {
		t.observer.TxConfirmed(method, time.Since(submitted))
	}
	out := domain.TxReceipt{
		Hash:    tx.Hash().Hex(),
		Block:   receipt.BlockNumber.Uint64(),
		GasUsed: receipt.GasUsed,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return out, fmt.Errorf("chain: %s %s: %w", method, out.Hash, domain.ErrTxReverted)
	}
	return out, nil
}

func (t *Transactor) submit(ctx context.Context, data []byte) (*types.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	tip, err := t.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas := t.cfg.GasLimit
	if gas == 0 {
		est, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: t.from, To: &t.contract, Data: data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gas = est + est/5
	}

	tx, err := types.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &t.contract,
		Data:      data,
	}), types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return tx, nil
}

func (t *Transactor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
		default:
			t.logger.Warn("receipt lookup failed", slog.String("tx", hash.Hex()), slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, domain.ErrTxTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
