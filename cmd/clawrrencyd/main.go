// Command clawrrencyd runs a clawrrency validator node and doubles as the
// operator CLI for wallets, transfers, and registry queries against the
// same data directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	clawrrency "github.com/ruxir-ig/clawrrency"
	"github.com/ruxir-ig/clawrrency/config"
	"github.com/ruxir-ig/clawrrency/crypto/certgen"
	"github.com/ruxir-ig/clawrrency/network"
	"github.com/ruxir-ig/clawrrency/rpc"
	"github.com/ruxir-ig/clawrrency/wallet"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runNode(os.Args[2:])
	case "genkey":
		err = genKey(os.Args[2:])
	case "gencerts":
		err = genCerts(os.Args[2:])
	case "create-wallet":
		err = createWallet(os.Args[2:])
	case "list-wallets":
		err = listWallets(os.Args[2:])
	case "balance":
		err = balance(os.Args[2:])
	case "transfer":
		err = transfer(os.Args[2:])
	case "history":
		err = history(os.Args[2:])
	case "register":
		err = register(os.Args[2:])
	case "reputation":
		err = reputation(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: clawrrencyd <command> [flags]

commands:
  run            start a validator node (consensus + RPC + P2P)
  genkey         generate a validator key and exit
  gencerts       generate CA + node TLS certs and exit
  create-wallet  generate a wallet and ledger account
  list-wallets   list every registered identity
  balance        print an account's balance
  transfer       sign and apply a transfer
  history        print an account's transaction history
  register       register a bot identity (stake + optional attestation)
  reputation     recompute and print an account's reputation`)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func password() string {
	return os.Getenv("CLAWRRENCY_PASSWORD")
}

// ---- run ----

func runNode(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	keyPath := fs.String("key", "validator.key", "path to validator keystore file")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	pw := password()
	if pw == "" {
		log.Println("WARNING: CLAWRRENCY_PASSWORD not set — keystore will use an empty password")
	}
	privKey, err := wallet.LoadKey(*keyPath, pw)
	if err != nil {
		return fmt.Errorf("load validator key: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}

	sdk, err := clawrrency.New(cfg, privKey, nil)
	if err != nil {
		return fmt.Errorf("sdk: %w", err)
	}
	defer sdk.Close()

	if err := sdk.Initialize(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		sdk.Log.Info("mTLS enabled for P2P")
	}

	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, sdk.Consensus, tlsCfg, sdk.Log)
	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()
	sdk.Consensus.SetBroadcaster(node)
	sdk.Log.Infof("P2P listening on %s", p2pAddr)

	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			sdk.Log.Warnf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
			continue
		}
		sdk.Log.Infof("connected to seed peer %s (%s)", sp.ID, sp.Addr)
	}

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(sdk.Ledger, sdk.Consensus, sdk.Market)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	sdk.Log.Infof("RPC listening on %s", rpcAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sdk.RunMaintenance(ctx, 10*time.Minute)

	sdk.Log.Infof("validator running: %s", privKey.Public().Hex())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	sdk.Log.Info("shutting down...")
	// PBFT here is message-driven (no ticked consensus loop to drain);
	// the deferred Stop/Close calls above handle an orderly teardown.
	sdk.Log.Info("shutdown complete.")
	return nil
}

// ---- genkey / gencerts ----

func genKey(args []string) error {
	fs := flag.NewFlagSet("genkey", flag.ExitOnError)
	keyPath := fs.String("key", "validator.key", "output keystore path")
	fs.Parse(args)

	w, err := wallet.Generate()
	if err != nil {
		return err
	}
	if err := wallet.SaveKey(*keyPath, password(), w.PrivKey()); err != nil {
		return err
	}
	fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
	fmt.Printf("Saved to: %s\n", *keyPath)
	return nil
}

func genCerts(args []string) error {
	fs := flag.NewFlagSet("gencerts", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	dir := fs.String("dir", "certs", "output directory")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := certgen.GenerateAll(*dir, cfg.NodeID, nil); err != nil {
		return err
	}
	fmt.Printf("Certificates generated in %s for node %q\n", *dir, cfg.NodeID)
	return nil
}

// ---- wallet / ledger commands (operate directly on the local data dir) ----

func openSDK(cfgPath string) (*clawrrency.SDK, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	sdk, err := clawrrency.New(cfg, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := sdk.Initialize(); err != nil {
		sdk.Close()
		return nil, err
	}
	return sdk, nil
}

func createWallet(args []string) error {
	fs := flag.NewFlagSet("create-wallet", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	name := fs.String("name", "", "wallet name")
	desc := fs.String("description", "", "wallet description")
	fs.Parse(args)

	sdk, err := openSDK(*cfgPath)
	if err != nil {
		return err
	}
	defer sdk.Close()

	w, id, err := sdk.Identity.CreateWallet(*name, *desc, password())
	if err != nil {
		return err
	}
	fmt.Printf("public_key: %s\n", w.PubKey())
	fmt.Printf("name: %s\n", id.Name)
	fmt.Printf("keystore: %s\n", id.KeystorePath)
	return nil
}

func listWallets(args []string) error {
	fs := flag.NewFlagSet("list-wallets", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	fs.Parse(args)

	sdk, err := openSDK(*cfgPath)
	if err != nil {
		return err
	}
	defer sdk.Close()

	ids, err := sdk.Identity.ListIdentities()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Printf("%s\t%s\n", id.PubKey, id.Name)
	}
	return nil
}

func balance(args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	pk := fs.String("public-key", "", "account public key (hex)")
	fs.Parse(args)

	sdk, err := openSDK(*cfgPath)
	if err != nil {
		return err
	}
	defer sdk.Close()

	bal, err := sdk.Ledger.GetBalance(*pk)
	if err != nil {
		return err
	}
	fmt.Println(bal)
	return nil
}

func loadWalletKey(sdk *clawrrency.SDK, pk string) (*wallet.Wallet, error) {
	id, err := sdk.Identity.GetIdentity(pk)
	if err != nil {
		return nil, fmt.Errorf("unknown wallet %s: %w", pk, err)
	}
	priv, err := wallet.LoadKey(id.KeystorePath, password())
	if err != nil {
		return nil, fmt.Errorf("load keystore: %w", err)
	}
	return wallet.New(priv), nil
}

func transfer(args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	from := fs.String("from", "", "sender public key (hex)")
	to := fs.String("to", "", "recipient public key (hex)")
	amount := fs.Uint64("amount", 0, "amount to transfer")
	fs.Parse(args)

	sdk, err := openSDK(*cfgPath)
	if err != nil {
		return err
	}
	defer sdk.Close()

	w, err := loadWalletKey(sdk, *from)
	if err != nil {
		return err
	}
	acc, err := sdk.Ledger.GetAccount(*from)
	if err != nil {
		return err
	}
	tx, err := w.Transfer(*to, *amount, acc.Nonce+1)
	if err != nil {
		return err
	}
	stx, err := sdk.Ledger.ApplyTransaction(tx)
	if err != nil {
		return err
	}
	fmt.Printf("applied: %s\n", stx.Tx.Hash())
	return nil
}

func history(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	pk := fs.String("public-key", "", "account public key (hex)")
	limit := fs.Int("limit", 20, "max entries, newest first")
	fs.Parse(args)

	sdk, err := openSDK(*cfgPath)
	if err != nil {
		return err
	}
	defer sdk.Close()

	hist, err := sdk.Ledger.GetTransactionHistory(*pk, *limit)
	if err != nil {
		return err
	}
	for _, stx := range hist {
		fmt.Printf("%s\t%s\t%s->%s\t%d\n", stx.Tx.Hash(), stx.Tx.Type, stx.Tx.From, stx.Tx.To, stx.Tx.Amount)
	}
	return nil
}

func register(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	pk := fs.String("public-key", "", "bot public key (hex)")
	attestation := fs.String("attestation", "", "attester public key (hex), optional")
	fs.Parse(args)

	sdk, err := openSDK(*cfgPath)
	if err != nil {
		return err
	}
	defer sdk.Close()

	w, err := loadWalletKey(sdk, *pk)
	if err != nil {
		return err
	}
	if err := sdk.Identity.RegisterBot(w, *attestation); err != nil {
		return err
	}
	fmt.Printf("registered: %s\n", *pk)
	return nil
}

func reputation(args []string) error {
	fs := flag.NewFlagSet("reputation", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "path to config file")
	pk := fs.String("public-key", "", "account public key (hex)")
	fs.Parse(args)

	sdk, err := openSDK(*cfgPath)
	if err != nil {
		return err
	}
	defer sdk.Close()

	rep, err := sdk.Identity.UpdateReputation(*pk)
	if err != nil {
		return err
	}
	fmt.Println(strconv.FormatFloat(rep, 'f', 4, 64))
	return nil
}
