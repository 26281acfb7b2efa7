// Package chain talks to the BinaryBetting contract over JSON-RPC.
package chain

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed binary_betting.abi.json
var abiJSON []byte

var (
	parseOnce sync.Once
	parsed    abi.ABI
	parseErr  error
)

// ContractABI returns the parsed BinaryBetting ABI.
func ContractABI() (abi.ABI, error) {
	parseOnce.Do(func() {
		parsed, parseErr = abi.JSON(bytes.NewReader(abiJSON))
		if parseErr != nil {
			parseErr = fmt.Errorf("chain: parse contract abi: %w", parseErr)
		}
	})
	return parsed, parseErr
}
