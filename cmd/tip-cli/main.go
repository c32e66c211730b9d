package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tipchain/cmd/internal/passphrase"
	"tipchain/crypto"
	"tipchain/native/tipping"
	"tipchain/rpc/client"
)

const (
	defaultRPC      = "http://localhost:8080"
	defaultKeystore = "tip-key.json"
	requestTimeout  = 30 * time.Second
)

type passphraseGetter interface {
	Get() (string, error)
}

var (
	keystoreCost        = crypto.StandardScrypt
	newPassphraseSource = func() passphraseGetter {
		return passphrase.NewSource("TIP_KEY_PASS", "Enter keystore passphrase: ")
	}
	newClient = func(endpoint string, opts ...client.Option) *client.Client {
		return client.New(endpoint, opts...)
	}
)

// globals are resolved from flags, environment and the profile, in that order.
type globals struct {
	rpc         string
	profilePath string
	profile     profile
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	g, rest, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(rest) == 0 {
		printUsage(stderr)
		return 1
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "generate-key":
		return runGenerateKey(g, cmdArgs, stdout, stderr)
	case "address":
		return runAddress(g, cmdArgs, stdout, stderr)
	case "airdrop":
		return runAirdrop(g, cmdArgs, stdout, stderr)
	case "init":
		return runInit(g, cmdArgs, stdout, stderr)
	case "send":
		return runSend(g, cmdArgs, stdout, stderr)
	case "account":
		return runAccount(g, cmdArgs, stdout, stderr)
	case "balance":
		return runBalance(g, cmdArgs, stdout, stderr)
	case "receipts":
		return runReceipts(g, cmdArgs, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}
}

func applyGlobalFlags(args []string) (*globals, []string, error) {
	g := &globals{profilePath: defaultProfilePath()}
	var rpcFlag string
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--profile":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				rpcFlag = args[i+1]
			} else {
				g.profilePath = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			rpcFlag = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--profile="):
			g.profilePath = strings.TrimPrefix(arg, "--profile=")
		default:
			out = append(out, arg)
		}
	}

	p, err := loadProfile(g.profilePath)
	if err != nil {
		return nil, nil, err
	}
	g.profile = p

	switch {
	case strings.TrimSpace(rpcFlag) != "":
		g.rpc = strings.TrimSpace(rpcFlag)
	case strings.TrimSpace(os.Getenv("TIP_RPC_URL")) != "":
		g.rpc = strings.TrimSpace(os.Getenv("TIP_RPC_URL"))
	case p.RPC != "":
		g.rpc = p.RPC
	default:
		g.rpc = defaultRPC
	}
	return g, out, nil
}

func (g *globals) client(token string) *client.Client {
	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return newClient(g.rpc, opts...)
}

func (g *globals) keystorePath(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if g.profile.Keystore != "" {
		return g.profile.Keystore
	}
	return defaultKeystore
}

func (g *globals) faucetToken(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("TIP_FAUCET_TOKEN")); v != "" {
		return v
	}
	return g.profile.FaucetToken
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := newPassphraseSource().Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key, nil
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr.Array(), nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func printJSON(w io.Writer, v interface{}) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	fmt.Fprintln(w, string(encoded))
}

// reportError prints err and, for ledger rejections, the failure kind.
func reportError(stderr io.Writer, err error) int {
	var ledgerErr *tipping.Error
	if errors.As(err, &ledgerErr) {
		fmt.Fprintf(stderr, "Error: %v (%s)\n", err, ledgerErr.Kind)
		return 2
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: tip-cli [--rpc URL] [--profile PATH] <command> [flags] [args]

Commands:
  generate-key [--out PATH] [--save]         Create an encrypted keystore and print its address
  address [--key PATH]                       Print the address held by a keystore
  airdrop [--token JWT] <address> <amount>   Request faucet funds
  init [--key PATH] [--nonce N] <creator>    Create the tip account bound to creator
  send [--key PATH] [--nonce N] <creator> <amount>
                                             Tip the bound creator
  account <tipper>                           Show a tip account
  balance <address>                          Show balance and nonce
  receipts [--tipper A] [--creator A] [--kind K] [--limit N] [--offset N]
                                             List indexed receipts

Environment:
  TIP_RPC_URL       JSON-RPC endpoint (default http://localhost:8080)
  TIP_KEY_PASS      keystore passphrase; prompted when unset
  TIP_FAUCET_TOKEN  bearer token for airdrop
  TIP_PROFILE       profile path (default ~/.tipchain/profile.yaml)`)
}
