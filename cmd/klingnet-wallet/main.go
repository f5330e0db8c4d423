// klingnet-wallet drives a wallet against an in-process node whose blocks
// persist in the data directory.
//
// Usage:
//
//	klingnet-wallet [global flags] <command> [flags]
//	klingnet-wallet --help
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chain"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const version = "0.1.0"

// app bundles what every command needs.
type app struct {
	ctx    context.Context
	cfg    *config.Config
	node   *chain.Chain
	wallet *wallet.Wallet
}

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fatal("%v", err)
	}
	if flags.Help {
		usage()
		return
	}
	if flags.Version {
		fmt.Printf("klingnet-wallet version %s\n", version)
		return
	}
	if len(flags.Args) == 0 {
		usage()
		os.Exit(1)
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}
	types.SetAddressHRP(cfg.HRP())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openNodeDB(cfg)
	if err != nil {
		fatal("open node store: %v", err)
	}
	defer db.Close()

	nodeDB := storage.NewPrefixDB(db, []byte("node/"))
	if flags.Args[0] == "reset" {
		if err := nodeDB.DeleteAll(); err != nil {
			fatal("reset node: %v", err)
		}
		fmt.Println("Node blocks removed")
		return
	}

	node, err := chain.New(nodeDB)
	if err != nil {
		fatal("open node: %v", err)
	}

	owned, err := cfg.OwnedAddresses()
	if err != nil {
		fatal("%v", err)
	}
	w, err := wallet.New(owned, wallet.WithLogger(log.Wallet))
	if err != nil {
		fatal("open wallet: %v", err)
	}

	a := &app{ctx: ctx, cfg: cfg, node: node, wallet: w}
	a.sync()

	cmd, cmdArgs := flags.Args[0], flags.Args[1:]
	switch cmd {
	case "status":
		a.cmdStatus()
	case "mint":
		a.cmdMint(cmdArgs)
	case "block":
		a.cmdBlock(cmdArgs)
	case "set-best":
		a.cmdSetBest(cmdArgs)
	case "balance":
		a.cmdBalance(cmdArgs)
	case "coins":
		a.cmdCoins(cmdArgs)
	case "send":
		a.cmdSend(cmdArgs)
	case "spend":
		a.cmdSpend(cmdArgs)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingnet-wallet [global flags] <command> [flags]

Global flags:
  --datadir <path>      Data directory (default: ~/.klingnet-wallet)
  --network <net>       mainnet (default) or testnet
  --testnet             Shorthand for --network=testnet
  --config, -c <path>   Config file (default: <datadir>/klingnet-wallet.conf)
  --backend <b>         Node block store: badger (default) or memory
  --addresses <list>    Owned addresses, comma-separated
  --log-level <lvl>     debug, info, warn, error (default: info)
  --log-file <path>     Also append logs to this file
  --log-json            Output logs as JSON

Commands:
  status                          Show node and wallet tips
  mint --to <addr> --amount <n> [--parent <hash|height>] [--side]
                                  Add a block minting a coin
  block <hash|height>             Show a block
  set-best <hash|height>          Make a known block the node's best tip
  balance [addr]                  Show balances of owned addresses
  coins [addr]                    List unspent owned coins
  send --to <addr> --amount <n> [--tip <n>] [--include]
                                  Build a transaction choosing coins automatically
  spend --inputs <id,...> --to <addr> --amount <n> [--include]
                                  Build a transaction from explicit coins
  reset                           Remove every block from the node store

The wallet syncs with the node before every command.
`)
}

func openNodeDB(cfg *config.Config) (storage.DB, error) {
	if cfg.Node.Backend == config.BackendMemory {
		log.Storage.Debug().Msg("Using in-memory block store")
		return storage.NewMemory(), nil
	}
	db, err := storage.NewBadger(cfg.NodeDir())
	if err != nil {
		return nil, err
	}
	log.Storage.Debug().Str("path", cfg.NodeDir()).Msg("Opened block store")
	return db, nil
}

func (a *app) sync() {
	res, err := a.wallet.Sync(a.ctx, a.node)
	if err != nil {
		fatal("sync: %v", err)
	}
	if res.Reverted > 0 {
		fmt.Fprintf(os.Stderr, "Reorg: reverted %d, applied %d blocks (ancestor %s at %d)\n",
			res.Reverted, res.Applied, res.Ancestor.Short(), res.AncestorHeight)
	}
}

// ── status ──────────────────────────────────────────────────────────────

func (a *app) cmdStatus() {
	best, height := a.node.Best()
	blocks, err := a.node.BlockCount()
	if err != nil {
		fatal("count blocks: %v", err)
	}
	fmt.Printf("Network:       %s\n", a.cfg.Network)
	fmt.Printf("Node tip:      %s\n", best)
	fmt.Printf("Node height:   %d\n", height)
	fmt.Printf("Node blocks:   %d\n", blocks)
	fmt.Printf("Wallet tip:    %s\n", a.wallet.BestHash())
	fmt.Printf("Wallet height: %d\n", a.wallet.BestHeight())
	fmt.Printf("Addresses:     %d\n", len(a.wallet.Addresses()))
	fmt.Printf("Net worth:     %d\n", a.wallet.NetWorth())
}

// ── blocks ──────────────────────────────────────────────────────────────

func (a *app) cmdMint(args []string) {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	to := fs.String("to", "", "Recipient address")
	amount := fs.Uint64("amount", 0, "Coin value")
	parentArg := fs.String("parent", "", "Parent block hash or height (default: best tip)")
	side := fs.Bool("side", false, "Add the block without making it the best tip")
	fs.Parse(args)

	if *to == "" || *amount == 0 {
		fatal("Usage: klingnet-wallet mint --to <addr> --amount <n> [--parent <hash|height>] [--side]")
	}
	addr, err := types.ParseAddress(*to)
	if err != nil {
		fatal("invalid address: %v", err)
	}
	parent, _ := a.node.Best()
	if *parentArg != "" {
		parent = a.resolveBlock(*parentArg)
	}

	m := tx.NewBuilder().AddOutput(*amount, addr).Build()
	a.addBlock(parent, m, !*side)
}

func (a *app) addBlock(parent types.Hash, t *tx.Transaction, best bool) {
	var (
		id  types.Hash
		err error
	)
	txs := []*tx.Transaction{t}
	if best {
		id, err = a.node.AddBlockAsBest(parent, txs)
	} else {
		id, err = a.node.AddBlock(parent, txs)
	}
	if err != nil {
		fatal("add block: %v", err)
	}
	blk, err := a.node.GetBlock(id)
	if err != nil {
		fatal("get block: %v", err)
	}
	fmt.Printf("Block:  %s\n", id)
	fmt.Printf("Height: %d\n", blk.Height())
	if best {
		a.sync()
		fmt.Printf("Wallet height: %d\n", a.wallet.BestHeight())
	}
}

func (a *app) cmdBlock(args []string) {
	if len(args) < 1 {
		fatal("Usage: klingnet-wallet block <hash|height>")
	}
	blk, err := a.node.GetBlock(a.resolveBlock(args[0]))
	if err != nil {
		fatal("get block: %v", err)
	}
	fmt.Printf("Hash:         %s\n", blk.ID())
	fmt.Printf("Height:       %d\n", blk.Height())
	fmt.Printf("Parent:       %s\n", blk.Header.ParentID)
	fmt.Printf("Tx root:      %s\n", blk.Header.TxRoot)
	fmt.Printf("Transactions: %d\n", len(blk.Transactions))
	for i, t := range blk.Transactions {
		total, err := t.TotalOutputValue()
		value := strconv.FormatUint(total, 10)
		if err != nil {
			value = "overflow"
		}
		fmt.Printf("  [%d] %s  in=%d out=%d value=%s\n", i, t.Hash(), len(t.Inputs), len(t.Outputs), value)
	}
}

func (a *app) cmdSetBest(args []string) {
	if len(args) < 1 {
		fatal("Usage: klingnet-wallet set-best <hash|height>")
	}
	id := a.resolveBlock(args[0])
	if err := a.node.SetBest(id); err != nil {
		fatal("set best: %v", err)
	}
	a.sync()
	fmt.Printf("Best:   %s\n", id)
	fmt.Printf("Height: %d\n", a.wallet.BestHeight())
}

// resolveBlock accepts a block hash, or a height on the current best chain.
func (a *app) resolveBlock(arg string) types.Hash {
	if height, err := strconv.ParseUint(arg, 10, 64); err == nil {
		id, err := a.node.BestBlockAtHeight(height)
		if err != nil {
			fatal("block at height %d: %v", height, err)
		}
		return id
	}
	id, err := types.HexToHash(arg)
	if err != nil {
		fatal("invalid block hash: %v", err)
	}
	return id
}

// ── balances ────────────────────────────────────────────────────────────

func (a *app) targets(args []string) []types.Address {
	if len(args) == 0 {
		return a.wallet.Addresses()
	}
	addr, err := types.ParseAddress(args[0])
	if err != nil {
		fatal("invalid address: %v", err)
	}
	return []types.Address{addr}
}

func (a *app) cmdBalance(args []string) {
	for _, addr := range a.targets(args) {
		total, err := a.wallet.TotalAssetsOf(addr)
		if err != nil {
			fatal("balance of %s: %v", addr, err)
		}
		fmt.Printf("%s  %d\n", addr, total)
	}
	if len(args) == 0 {
		fmt.Printf("Total: %d\n", a.wallet.NetWorth())
	}
}

func (a *app) cmdCoins(args []string) {
	if len(args) == 0 {
		coins, err := a.wallet.Coins()
		if err != nil {
			fatal("list coins: %v", err)
		}
		for _, c := range coins {
			fmt.Printf("%s  %s  %d\n", c.ID, c.Coin.Owner, c.Coin.Value)
		}
		return
	}
	addr := a.targets(args)[0]
	coins, err := a.wallet.AllCoinsOf(addr)
	if err != nil {
		fatal("coins of %s: %v", addr, err)
	}
	for id, value := range coins {
		fmt.Printf("%s  %d\n", id, value)
	}
}

// ── transactions ────────────────────────────────────────────────────────

func (a *app) cmdSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "Recipient address")
	amount := fs.Uint64("amount", 0, "Amount to pay")
	tip := fs.Uint64("tip", 0, "Amount burned as tip")
	include := fs.Bool("include", false, "Mine the transaction into a new best block")
	fs.Parse(args)

	if *to == "" {
		fatal("Usage: klingnet-wallet send --to <addr> --amount <n> [--tip <n>] [--include]")
	}
	addr, err := types.ParseAddress(*to)
	if err != nil {
		fatal("invalid recipient address: %v", err)
	}

	t, err := a.wallet.CreateAutomaticTransaction(addr, *amount, *tip)
	if err != nil {
		fatal("create transaction: %v", err)
	}
	a.finishTx(t, *include)
}

func (a *app) cmdSpend(args []string) {
	fs := flag.NewFlagSet("spend", flag.ExitOnError)
	inputs := fs.String("inputs", "", "Coin ids to spend, comma-separated")
	to := fs.String("to", "", "Recipient address")
	amount := fs.Uint64("amount", 0, "Amount to pay")
	include := fs.Bool("include", false, "Mine the transaction into a new best block")
	fs.Parse(args)

	if *inputs == "" || *to == "" {
		fatal("Usage: klingnet-wallet spend --inputs <id,...> --to <addr> --amount <n> [--include]")
	}
	addr, err := types.ParseAddress(*to)
	if err != nil {
		fatal("invalid recipient address: %v", err)
	}
	var ids []types.CoinID
	for _, s := range strings.Split(*inputs, ",") {
		id, err := types.HexToCoinID(strings.TrimSpace(s))
		if err != nil {
			fatal("invalid input: %v", err)
		}
		ids = append(ids, id)
	}

	t, err := a.wallet.CreateManualTransaction(ids, []tx.Coin{{Value: *amount, Owner: addr}})
	if err != nil {
		fatal("create transaction: %v", err)
	}
	a.finishTx(t, *include)
}

func (a *app) finishTx(t *tx.Transaction, include bool) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		fatal("encode transaction: %v", err)
	}
	fmt.Printf("Tx: %s\n%s\n", t.Hash(), data)
	if include {
		parent, _ := a.node.Best()
		a.addBlock(parent, t, true)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
