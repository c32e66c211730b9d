package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tipchain/crypto"
	"tipchain/rpc"
	"tipchain/rpc/client"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runGenerateKey(g *globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	out := fs.String("out", "", "keystore output path")
	save := fs.Bool("save", false, "record the keystore path in the profile")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	path := g.keystorePath(*out)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return reportError(stderr, fmt.Errorf("generate key: %w", err))
	}
	pass, err := newPassphraseSource().Get()
	if err != nil {
		return reportError(stderr, err)
	}
	if err := crypto.SaveToKeystoreWith(path, key, pass, keystoreCost); err != nil {
		return reportError(stderr, fmt.Errorf("write keystore: %w", err))
	}
	if *save {
		p := g.profile
		p.Keystore = path
		if err := saveProfile(g.profilePath, p); err != nil {
			return reportError(stderr, fmt.Errorf("save profile: %w", err))
		}
	}
	fmt.Fprintf(stdout, "Keystore written to %s\n", path)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(g *globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyPath := fs.String("key", "", "keystore path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(g.keystorePath(*keyPath))
	if err != nil {
		return reportError(stderr, err)
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runAirdrop(g *globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("airdrop", stderr)
	token := fs.String("token", "", "faucet bearer token")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "Usage: tip-cli airdrop [--token JWT] <address> <amount>")
		return 1
	}
	addr, err := parseAddress(fs.Arg(0))
	if err != nil {
		return reportError(stderr, err)
	}
	amount, err := parseAmount(fs.Arg(1))
	if err != nil {
		return reportError(stderr, err)
	}
	bearer := g.faucetToken(*token)
	if bearer == "" {
		return reportError(stderr, fmt.Errorf("faucet token required; pass --token or set TIP_FAUCET_TOKEN"))
	}

	ctx, cancel := requestContext()
	defer cancel()
	res, err := g.client(bearer).Airdrop(ctx, addr, amount)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func runInit(g *globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init", stderr)
	keyPath := fs.String("key", "", "keystore path")
	nonce := fs.Int64("nonce", -1, "request nonce; fetched from the node when negative")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: tip-cli init [--key PATH] [--nonce N] <creator>")
		return 1
	}
	creator, err := parseAddress(fs.Arg(0))
	if err != nil {
		return reportError(stderr, err)
	}
	key, err := loadKey(g.keystorePath(*keyPath))
	if err != nil {
		return reportError(stderr, err)
	}

	ctx, cancel := requestContext()
	defer cancel()
	c := g.client("")
	n, err := resolveNonce(ctx, c, key, *nonce)
	if err != nil {
		return reportError(stderr, err)
	}
	res, err := c.Initialize(ctx, key, creator, n)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func runSend(g *globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("send", stderr)
	keyPath := fs.String("key", "", "keystore path")
	nonce := fs.Int64("nonce", -1, "request nonce; fetched from the node when negative")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "Usage: tip-cli send [--key PATH] [--nonce N] <creator> <amount>")
		return 1
	}
	creator, err := parseAddress(fs.Arg(0))
	if err != nil {
		return reportError(stderr, err)
	}
	amount, err := parseAmount(fs.Arg(1))
	if err != nil {
		return reportError(stderr, err)
	}
	key, err := loadKey(g.keystorePath(*keyPath))
	if err != nil {
		return reportError(stderr, err)
	}

	ctx, cancel := requestContext()
	defer cancel()
	c := g.client("")
	n, err := resolveNonce(ctx, c, key, *nonce)
	if err != nil {
		return reportError(stderr, err)
	}
	res, err := c.SendTip(ctx, key, creator, amount, n)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func runAccount(g *globals, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: tip-cli account <tipper>")
		return 1
	}
	tipper, err := parseAddress(args[0])
	if err != nil {
		return reportError(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	res, err := g.client("").TipAccount(ctx, tipper)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func runBalance(g *globals, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: tip-cli balance <address>")
		return 1
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return reportError(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	c := g.client("")
	balance, err := c.Balance(ctx, addr)
	if err != nil {
		return reportError(stderr, err)
	}
	nonce, err := c.Nonce(ctx, addr)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, rpc.BalanceResult{
		Address: crypto.FormatAddress(addr),
		Balance: balance.String(),
		Nonce:   nonce,
	})
	return 0
}

func runReceipts(g *globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("receipts", stderr)
	var params rpc.ReceiptsParams
	fs.StringVar(&params.Tipper, "tipper", "", "filter by tipper address")
	fs.StringVar(&params.Creator, "creator", "", "filter by creator address")
	fs.StringVar(&params.Kind, "kind", "", "filter by receipt kind (initialize, send_tip, airdrop)")
	fs.IntVar(&params.Limit, "limit", 0, "maximum receipts to return")
	fs.IntVar(&params.Offset, "offset", 0, "receipts to skip")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	for _, addr := range []string{params.Tipper, params.Creator} {
		if addr == "" {
			continue
		}
		if _, err := parseAddress(addr); err != nil {
			return reportError(stderr, err)
		}
	}

	ctx, cancel := requestContext()
	defer cancel()
	res, err := g.client("").Receipts(ctx, params)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, res)
	return 0
}

func resolveNonce(ctx context.Context, c *client.Client, key *crypto.PrivateKey, explicit int64) (uint64, error) {
	if explicit >= 0 {
		return uint64(explicit), nil
	}
	return c.Nonce(ctx, key.PubKey().Address().Array())
}

func parseAmount(raw string) (uint64, error) {
	amount, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}
