package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	"github.com/orionbet/orionkeeper/internal/crypto"
)

var cmdEncryptKey = &cli.Command{
	Name:  "encrypt-key",
	Usage: "Encrypt a keeper private key for keeper.encrypted_key_path",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "key",
			Usage:    "hex private key",
			EnvVars:  []string{"ORION_KEEPER_PRIVATE_KEY"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "password",
			EnvVars:  []string{"ORION_KEEPER_KEY_PASSWORD"},
			Required: true,
		},
		&cli.StringFlag{
			Name:  "out",
			Value: "keeper.key.json",
		},
	},
	Action: func(cctx *cli.Context) error {
		data, err := crypto.EncryptKey(cctx.String("key"), cctx.String("password"))
		if err != nil {
			return err
		}
		out := cctx.String("out")
		if err := os.WriteFile(out, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cctx.App.Writer, "encrypted key written to %s\n", out)
		return nil
	},
}

// cmdSignClaim produces the body a wallet would send to POST /api/claim.
// It is meant for local chains and tests.
var cmdSignClaim = &cli.Command{
	Name:  "sign-claim",
	Usage: "Sign a claim with a user key and print the /api/claim request body",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "key", Usage: "user hex private key", Required: true},
		&cli.Uint64Flag{Name: "round", Required: true},
		&cli.StringFlag{Name: "contract", EnvVars: []string{"ORION_CHAIN_CONTRACT_ADDRESS"}, Required: true},
		&cli.Int64Flag{Name: "chain-id", Value: 31337, EnvVars: []string{"ORION_CHAIN_CHAIN_ID"}},
		&cli.DurationFlag{Name: "valid-for", Value: 10 * time.Minute, Usage: "deadline offset from now"},
	},
	Action: func(cctx *cli.Context) error {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cctx.String("key"), "0x"))
		if err != nil {
			return fmt.Errorf("invalid user key: %w", err)
		}
		user := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
		roundID := cctx.Uint64("round")
		deadline := time.Now().Add(cctx.Duration("valid-for")).Unix()

		dom := crypto.NewClaimDomain(cctx.Int64("chain-id"), cctx.String("contract"))
		sig, err := dom.Sign(key, roundID, user, deadline)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cctx.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"roundId":     roundID,
			"userAddress": user,
			"deadline":    deadline,
			"signature":   sig,
		})
	},
}
