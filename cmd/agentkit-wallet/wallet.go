package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/urfave/cli/v2"

	"github.com/jojomensah89/agentkit/internal/journal"
	"github.com/jojomensah89/agentkit/internal/web3"
	"github.com/jojomensah89/agentkit/internal/web3/provider"
)

var addressCmd = &cli.Command{
	Name:  "address",
	Usage: "print the address of the configured account",
	Action: func(cctx *cli.Context) error {
		return withProvider(cctx, func(_ context.Context, chain string, p web3.EvmWalletProvider) error {
			address := p.GetAddress()
			if address == "" {
				return web3.ErrAccountMissing
			}
			return printJSON(cctx, map[string]string{"chain": chain, "address": address})
		})
	},
}

var networkCmd = &cli.Command{
	Name:  "network",
	Usage: "print the network of the selected chain",
	Action: func(cctx *cli.Context) error {
		return withProvider(cctx, func(_ context.Context, chain string, p web3.EvmWalletProvider) error {
			network, err := p.GetNetwork()
			if err != nil {
				return err
			}
			return printJSON(cctx, map[string]any{"chain": chain, "provider": p.GetName(), "network": network})
		})
	},
}

var signMessageCmd = &cli.Command{
	Name:      "sign-message",
	Usage:     "sign a personal message",
	ArgsUsage: "<message>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return errors.New("sign-message expects exactly one message argument")
		}
		message := cctx.Args().First()
		return withProvider(cctx, func(ctx context.Context, _ string, p web3.EvmWalletProvider) error {
			sig, err := p.SignMessage(ctx, message)
			if err != nil {
				return err
			}
			return printJSON(cctx, map[string]any{"address": p.GetAddress(), "signature": sig})
		})
	},
}

var sendCmd = &cli.Command{
	Name:  "send",
	Usage: "sign and broadcast a transaction",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "to", Usage: "recipient address", Required: true},
		&cli.StringFlag{Name: "value", Usage: "amount in wei, decimal or 0x hex", Value: "0"},
		&cli.StringFlag{Name: "data", Usage: "0x hex call data"},
		&cli.BoolFlag{Name: "sign-only", Usage: "print the signed transaction without broadcasting it"},
		&cli.BoolFlag{Name: "wait", Usage: "wait for the receipt after broadcasting"},
		&cli.DurationFlag{Name: "timeout", Usage: "receipt wait timeout", Value: 2 * time.Minute},
	},
	Action: func(cctx *cli.Context) error {
		tx, err := buildTransaction(cctx.String("to"), cctx.String("value"), cctx.String("data"))
		if err != nil {
			return err
		}
		return withProvider(cctx, func(ctx context.Context, _ string, p web3.EvmWalletProvider) error {
			if cctx.Bool("sign-only") {
				raw, err := p.SignTransaction(ctx, tx)
				if err != nil {
					return err
				}
				return printJSON(cctx, map[string]any{"signedTransaction": raw})
			}
			hash, err := p.SendTransaction(ctx, tx)
			if err != nil {
				return err
			}
			if !cctx.Bool("wait") {
				return printJSON(cctx, map[string]any{"transactionHash": hash})
			}
			return waitAndPrint(ctx, cctx, p, hash)
		})
	},
}

var receiptCmd = &cli.Command{
	Name:      "receipt",
	Usage:     "wait for a transaction receipt",
	ArgsUsage: "<tx-hash>",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "timeout", Usage: "receipt wait timeout", Value: 2 * time.Minute},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return errors.New("receipt expects exactly one transaction hash")
		}
		hash, err := parseHash(cctx.Args().First())
		if err != nil {
			return err
		}
		return withProvider(cctx, func(ctx context.Context, _ string, p web3.EvmWalletProvider) error {
			return waitAndPrint(ctx, cctx, p, hash)
		})
	},
}

// withProvider 构建 Registry 并选取 --chain 指定的钱包。
func withProvider(cctx *cli.Context, fn func(ctx context.Context, chain string, p web3.EvmWalletProvider) error) error {
	cfg, err := prepare(cctx)
	if err != nil {
		return err
	}
	ctx := cctx.Context
	if ctx == nil {
		ctx = context.Background()
	}
	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer registry.Close()

	chain := cctx.String("chain")
	if chain == "" {
		chain = registry.DefaultChain()
	}
	p, ok := registry.Provider(chain)
	if !ok {
		return fmt.Errorf("chain %s is not configured, available: %s", chain, strings.Join(registry.Chains(), ", "))
	}
	return fn(ctx, chain, p)
}

func waitAndPrint(ctx context.Context, cctx *cli.Context, p web3.EvmWalletProvider, hash common.Hash) error {
	waitCtx, cancel := context.WithTimeout(ctx, cctx.Duration("timeout"))
	defer cancel()
	receipt, err := p.WaitForTransactionReceipt(waitCtx, hash)
	if err != nil {
		return err
	}
	if receipt == nil {
		return fmt.Errorf("no receipt returned for %s", hash.Hex())
	}
	out := map[string]any{
		"transactionHash": hash,
		"status":          journal.ReceiptStatus(receipt),
		"gasUsed":         receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		out["blockNumber"] = receipt.BlockNumber.Uint64()
	}
	return printJSON(cctx, out)
}

func buildTransaction(to, value, data string) (web3.TransactionRequest, error) {
	if !common.IsHexAddress(to) {
		return web3.TransactionRequest{}, fmt.Errorf("invalid recipient address %q", to)
	}
	recipient := common.HexToAddress(to)
	amount, ok := math.ParseBig256(strings.TrimSpace(value))
	if !ok {
		return web3.TransactionRequest{}, fmt.Errorf("invalid value %q", value)
	}
	tx := web3.TransactionRequest{To: &recipient, Value: amount}
	if data = strings.TrimSpace(data); data != "" {
		payload, err := hexutil.Decode(data)
		if err != nil {
			return web3.TransactionRequest{}, fmt.Errorf("invalid data: %w", err)
		}
		tx.Data = payload
	}
	return tx, nil
}

func parseHash(raw string) (common.Hash, error) {
	decoded, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(decoded) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash %q", raw)
	}
	return common.BytesToHash(decoded), nil
}

func printJSON(cctx *cli.Context, v any) error {
	encoder := json.NewEncoder(cctx.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
