package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ultima-ai/ultima-broker/internal/bootstrap"
	"github.com/ultima-ai/ultima-broker/internal/config"
	"github.com/ultima-ai/ultima-broker/internal/pricing"
	"github.com/ultima-ai/ultima-broker/internal/txlog"
	"github.com/ultima-ai/ultima-broker/internal/version"
)

const usage = `brokerctl - operate on local broker stores

Usage:
  brokerctl init [-env dev] [-provider loopback] [-force]
  brokerctl balance -user <id>
  brokerctl credit -user <id> -amount <tokens> [-reason <text>]
  brokerctl history -user <id>
  brokerctl pricing
  brokerctl version
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "balance":
		runBalance(os.Args[2:])
	case "credit":
		runCredit(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "pricing":
		runPricing()
	case "version":
		fmt.Println(version.FullInfo())
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func loadConfig() config.BrokerConfig {
	cfg, err := config.LoadBrokerConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	return cfg
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	env := fs.String("env", "dev", "environment name")
	provider := fs.String("provider", "loopback", "generation provider")
	model := fs.String("model", "", "default model")
	force := fs.Bool("force", false, "overwrite existing config files")
	_ = fs.Parse(args)

	err := bootstrap.Init(bootstrap.InitOptions{
		Environment: *env,
		Provider:    *provider,
		Model:       *model,
		Force:       *force,
	})
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	fmt.Printf("config scaffolded for environment %s\n", *env)
}

func runBalance(args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	_ = fs.Parse(args)
	if strings.TrimSpace(*user) == "" {
		log.Fatal("balance requires -user")
	}

	cfg := loadConfig()
	store, err := bootstrap.OpenLedger(cfg)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer store.Close()

	balance, err := store.Balance(context.Background(), *user)
	if err != nil {
		log.Fatalf("balance: %v", err)
	}
	fmt.Printf("%s\t%d\n", *user, balance)
}

func runCredit(args []string) {
	fs := flag.NewFlagSet("credit", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	amount := fs.Int64("amount", 0, "tokens to credit")
	reason := fs.String("reason", "manual credit", "description for the transaction log")
	_ = fs.Parse(args)
	if strings.TrimSpace(*user) == "" || *amount <= 0 {
		log.Fatal("credit requires -user and a positive -amount")
	}

	cfg := loadConfig()
	store, err := bootstrap.OpenLedger(cfg)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer store.Close()

	txs, err := bootstrap.OpenTxLog(cfg)
	if err != nil {
		log.Fatalf("open transaction log: %v", err)
	}
	defer txs.Close()

	ctx := context.Background()
	if err := store.Credit(ctx, *user, *amount); err != nil {
		log.Fatalf("credit: %v", err)
	}
	if _, err := txs.Record(ctx, txlog.Transaction{
		UserID:      *user,
		Kind:        txlog.KindCredit,
		Amount:      *amount,
		Description: *reason,
		Metadata:    map[string]string{"source": "brokerctl"},
	}); err != nil {
		log.Fatalf("record transaction: %v", err)
	}

	balance, err := store.Balance(ctx, *user)
	if err != nil {
		log.Fatalf("balance: %v", err)
	}
	fmt.Printf("credited %d to %s, balance now %d\n", *amount, *user, balance)
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	_ = fs.Parse(args)
	if strings.TrimSpace(*user) == "" {
		log.Fatal("history requires -user")
	}

	cfg := loadConfig()
	txs, err := bootstrap.OpenTxLog(cfg)
	if err != nil {
		log.Fatalf("open transaction log: %v", err)
	}
	defer txs.Close()

	history, err := txs.History(context.Background(), *user)
	if err != nil {
		log.Fatalf("history: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tKIND\tAMOUNT\tCREATED\tDESCRIPTION\tHASH")
	for _, tx := range history {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			tx.Seq, tx.Kind, tx.Amount, tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.Description, shortHash(tx.Hash))
	}
	_ = w.Flush()
}

func runPricing() {
	cfg := loadConfig()
	table := pricing.Default()
	if strings.TrimSpace(cfg.PricingFile) != "" {
		var err error
		table, err = pricing.Load(cfg.PricingFile)
		if err != nil {
			log.Fatalf("load pricing file: %v", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tCOST")
	for _, op := range []pricing.Operation{
		pricing.OpChat,
		pricing.OpPromptSuggestion,
		pricing.OpCodeSuggestion,
		pricing.OpToolSuggestion,
	} {
		if cost, err := table.CostOf(op); err == nil {
			fmt.Fprintf(w, "%s\t%d\n", op, cost)
		}
	}
	fmt.Fprintln(w, "\nPACKAGE\tTOKENS\tPRICE")
	for name, pkg := range table.Packages() {
		fmt.Fprintf(w, "%s\t%d\t$%.2f\n", name, pkg.Tokens, pkg.Price)
	}
	fmt.Fprintf(w, "\nprice per token\t$%.4f\n", table.PricePerToken())
	_ = w.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
