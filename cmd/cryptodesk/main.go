package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	appservice "cryptodesk/internal/application/service"
	"cryptodesk/internal/domain"
	domainservice "cryptodesk/internal/domain/service"
	"cryptodesk/internal/infrastructure/config"
	"cryptodesk/internal/infrastructure/container"
	"cryptodesk/internal/infrastructure/exchange/kraken"
	"cryptodesk/internal/infrastructure/logger"
	wshub "cryptodesk/internal/infrastructure/websocket"
	"cryptodesk/internal/interfaces/console"
	"cryptodesk/internal/interfaces/rest"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	tape := flag.Bool("console", false, "print a live price tape to stdout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// storage backends
	c, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("container initialization failed")
	}
	defer c.Close()
	repo := c.Repository()

	// feed pipeline: kraken -> price book -> hub
	book := domain.NewPriceBook()

	// A previous run's quotes seed the book, and sqlite serves the
	// trade history read side when enabled.
	var history rest.TradeHistory
	if sqliteRepo := c.SQLiteRepo(); sqliteRepo != nil {
		appservice.WarmPriceBook(ctx, sqliteRepo, cfg.Kraken.DefaultPairs, book)
		history = sqliteRepo
	}

	feed := kraken.NewClient(kraken.Config{
		URL:           cfg.Kraken.WsURL,
		DefaultPairs:  cfg.Kraken.DefaultPairs,
		RetryInterval: time.Duration(cfg.Kraken.ReconnectSeconds) * time.Second,
	}, book)
	hub := wshub.NewHub(book)
	pipeline := appservice.NewTickerService(feed, repo, hub)

	ledger := domainservice.NewLedger(cfg.Trading.InitialBalance)
	pairs := kraken.NewPairsClient(cfg.Kraken.PairsURL, 0)

	log.Info().
		Str("config", *configPath).
		Str("ws_url", cfg.Kraken.WsURL).
		Strs("default_pairs", cfg.Kraken.DefaultPairs).
		Float64("initial_balance", cfg.Trading.InitialBalance).
		Msg("cryptodesk started")

	go pipeline.Run(ctx)

	if *tape {
		go console.NewTape(hub).Run(ctx)
	}

	srv := rest.NewServer(rest.Params{
		Addr:    cfg.Server.Addr,
		Ledger:  ledger,
		Feed:    feed,
		Book:    book,
		Hub:     hub,
		Pairs:   pairs,
		Repo:    repo,
		History: history,
	})
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("http server exited")
	}
}
