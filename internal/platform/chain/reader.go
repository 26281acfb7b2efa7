package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// Caller is the subset of ethclient.Client used for reads.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Reader performs view calls against the contract at the latest block.
type Reader struct {
	backend  Caller
	abi      abi.ABI
	contract common.Address
}

var _ domain.ChainReader = (*Reader)(nil)

// Dial connects to rpcURL and checks that the node serves chainID.
func Dial(ctx context.Context, rpcURL string, chainID int64) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	got, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: read chain id: %w", err)
	}
	if got.Int64() != chainID {
		client.Close()
		return nil, fmt.Errorf("chain: node serves chain %s, configured %d", got, chainID)
	}
	return client, nil
}

// NewReader creates a Reader for the contract at address.
func NewReader(backend Caller, address string) (*Reader, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("chain: invalid contract address %q: %w", address, domain.ErrNotConfigured)
	}
	parsed, err := ContractABI()
	if err != nil {
		return nil, err
	}
	return &Reader{backend: backend, abi: parsed, contract: common.HexToAddress(address)}, nil
}

func (r *Reader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	vals, err := r.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

// CurrentRoundID returns the id of the most recently started round, 0 if none.
func (r *Reader) CurrentRoundID(ctx context.Context) (uint64, error) {
	vals, err := r.call(ctx, "currentRoundId")
	if err != nil {
		return 0, fmt.Errorf("chain: current round id: %w", err)
	}
	return vals[0].(uint64), nil
}

// GetRound reads round id.
func (r *Reader) GetRound(ctx context.Context, id uint64) (domain.Round, error) {
	if id == 0 {
		return domain.Round{}, fmt.Errorf("chain: get round 0: %w", domain.ErrRoundNotFound)
	}
	vals, err := r.call(ctx, "getRound", id)
	if err != nil {
		return domain.Round{}, fmt.Errorf("chain: get round %d: %w", id, err)
	}
	round := domain.Round{
		ID:         vals[0].(uint64),
		StartPrice: domain.Price(vals[1].(uint64)),
		EndPrice:   domain.Price(vals[2].(uint64)),
		ExpiryTime: int64(vals[3].(uint64)),
		Settled:    vals[4].(bool),
		UpPool:     vals[5].(uint64),
		DownPool:   vals[6].(uint64),
	}
	if round.ID == 0 {
		return domain.Round{}, fmt.Errorf("chain: get round %d: %w", id, domain.ErrRoundNotFound)
	}
	return round, nil
}

// GetUserBet reads user's position in round id. ErrNoBet is returned
// together with the zero bet when the user has not bet.
func (r *Reader) GetUserBet(ctx context.Context, id uint64, user string) (domain.UserBet, error) {
	if !common.IsHexAddress(user) {
		return domain.UserBet{}, fmt.Errorf("chain: invalid user address %q", user)
	}
	addr := common.HexToAddress(user)
	vals, err := r.call(ctx, "getUserBet", id, addr)
	if err != nil {
		return domain.UserBet{}, fmt.Errorf("chain: get bet %d/%s: %w", id, addr.Hex(), err)
	}
	bet := domain.UserBet{
		RoundID: id,
		User:    addr.Hex(),
		SideUp:  vals[0].(bool),
		Amount:  vals[1].(uint64),
		Claimed: vals[2].(bool),
	}
	if bet.Amount == 0 {
		return bet, domain.ErrNoBet
	}
	return bet, nil
}

// FeeBps returns the protocol fee in basis points.
func (r *Reader) FeeBps(ctx context.Context) (uint64, error) {
	vals, err := r.call(ctx, "feeBps")
	if err != nil {
		return 0, fmt.Errorf("chain: fee bps: %w", err)
	}
	return uint64(vals[0].(uint16)), nil
}

// Initialized reports whether initialize has been called.
func (r *Reader) Initialized(ctx context.Context) (bool, error) {
	vals, err := r.call(ctx, "initialized")
	if err != nil {
		return false, fmt.Errorf("chain: initialized: %w", err)
	}
	return vals[0].(bool), nil
}

// Balance returns the native balance of addr in wei.
func (r *Reader) Balance(ctx context.Context, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("chain: invalid address %q", addr)
	}
	bal, err := r.backend.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balance of %s: %w", addr, err)
	}
	return bal, nil
}
