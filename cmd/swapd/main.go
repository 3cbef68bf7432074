package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/swapbook/params"
	"github.com/uhyunpark/swapbook/pkg/api"
	"github.com/uhyunpark/swapbook/pkg/asset"
	"github.com/uhyunpark/swapbook/pkg/book"
	"github.com/uhyunpark/swapbook/pkg/ledger"
	"github.com/uhyunpark/swapbook/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.API.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.API.LogFile)

	for _, addr := range []string{cfg.Engine.Admin, cfg.Engine.FeeRecipient, cfg.Engine.Custody} {
		if !common.IsHexAddress(addr) {
			sugar.Fatalw("invalid_address_in_config", "addr", addr)
		}
	}
	custody := common.HexToAddress(cfg.Engine.Custody)

	// ---- Custody ledger ----
	l, err := ledger.NewLedger(cfg.Store.LedgerPath, custody)
	if err != nil {
		sugar.Fatalw("ledger_init_failed", "err", err)
	}
	defer l.Close()
	sugar.Infow("ledger_opened", "path", cfg.Store.LedgerPath, "accounts", l.Count())

	// ---- Recognized-asset allow-list ----
	registry := asset.NewRegistry()
	for _, entry := range cfg.Assets {
		a, err := asset.New(entry.Symbol, entry.MinOrderAmount, entry.Decimals)
		if err != nil {
			sugar.Fatalw("bad_asset_config", "symbol", entry.Symbol, "err", err)
		}
		if err := registry.Register(a); err != nil {
			sugar.Fatalw("asset_register_failed", "symbol", entry.Symbol, "err", err)
		}
	}
	sugar.Infow("assets_registered", "count", registry.Count())

	// ---- Order journal + engine ----
	journal, err := book.NewJournal(cfg.Store.JournalPath)
	if err != nil {
		sugar.Fatalw("journal_init_failed", "err", err)
	}
	defer journal.Close()

	engine := book.NewEngine(l, registry, book.Config{
		MakerFeeBps:  cfg.Engine.MakerFeeBps,
		TakerFeeBps:  cfg.Engine.TakerFeeBps,
		Admin:        common.HexToAddress(cfg.Engine.Admin),
		FeeRecipient: common.HexToAddress(cfg.Engine.FeeRecipient),
		Custody:      custody,
	})
	engine.Journal = journal
	engine.Logger = sugar
	if err := engine.Restore(); err != nil {
		sugar.Fatalw("book_restore_failed", "err", err)
	}

	// ---- API server ----
	apiServer := api.NewServer(engine, l, registry, sugar)
	engine.OnEvent = apiServer.OnEngineEvent

	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("swapd_started",
		"addr", cfg.API.Addr,
		"open_orders", engine.NumOrders(),
		"maker_fee_bps", cfg.Engine.MakerFeeBps,
		"taker_fee_bps", cfg.Engine.TakerFeeBps,
		"fee_recipient", engine.FeeRecipient().Hex())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sugar.Info("shutting down")
}
