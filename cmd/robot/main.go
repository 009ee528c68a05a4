package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/broker/sandbox"
	"github.com/rame0/tinkoff-robot/internal/config"
	"github.com/rame0/tinkoff-robot/internal/exchange"
	"github.com/rame0/tinkoff-robot/internal/metrics"
	"github.com/rame0/tinkoff-robot/internal/report"
	"github.com/rame0/tinkoff-robot/internal/robot"
	"github.com/rame0/tinkoff-robot/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/robot.yaml", "path to the robot config")
	once := flag.Bool("once", false, "run a single cycle and exit")
	useSandbox := flag.Bool("sandbox", false, "trade against the in-memory sandbox account")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		lg := util.NewLogger("info")
		lg.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if *useSandbox {
		cfg.App.Sandbox = true
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	prov, stopMarks, err := buildProviders(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wire providers")
	}
	defer stopMarks()

	bot, err := robot.New(cfg, prov, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build robot")
	}

	log.Info().Bool("once", *once).Bool("sandbox", cfg.App.Sandbox).
		Bool("dry_run", cfg.App.DryRun).Int("strategies", len(cfg.Strategies)).
		Msg("robot started")
	if err := bot.Run(ctx, *once); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("robot stopped")
	}
	log.Info().Msg("shutting down")
}

// buildProviders wires market data from the exchange and, in sandbox mode,
// an in-memory account seeded with real instruments and SANDBOX_BALANCE
// cash. Live order routing is deliberately not wired: without it the
// process refuses to start outside sandbox or dry-run mode.
func buildProviders(ctx context.Context, cfg *config.Config, log zerolog.Logger) (robot.Providers, func(), error) {
	market := exchange.NewClient(log,
		exchange.WithReconnectBackoff(time.Duration(cfg.Stream.ReconnectBackoffMs)*time.Millisecond))

	var rec report.Recorder
	if cfg.App.TradesPath != "" {
		r, err := report.NewJSONLRecorder(cfg.App.TradesPath)
		if err != nil {
			return robot.Providers{}, nil, err
		}
		rec = r
	}

	if !cfg.App.Sandbox && !cfg.App.DryRun {
		log.Fatal().Msg("live order routing is not wired; enable app.sandbox or app.dry_run")
	}

	account := sandbox.NewAccount(envBalance(), log)
	for _, sc := range cfg.Strategies {
		instr, err := market.Instrument(ctx, sc.Figi)
		if err != nil {
			return robot.Providers{}, nil, err
		}
		price, err := market.CurrentPrice(ctx, sc.Figi)
		if err != nil {
			return robot.Providers{}, nil, err
		}
		account.AddInstrument(instr, price)
	}
	stop := startMarkLoop(ctx, cfg, market, account, log)

	return robot.Providers{
		Market:    market,
		Portfolio: account,
		Orders:    account,
		Recorder:  rec,
	}, stop, nil
}

// startMarkLoop keeps the sandbox account marked to real prices so resting
// limit orders fill when the market crosses them.
func startMarkLoop(ctx context.Context, cfg *config.Config, market *exchange.Client, account *sandbox.Account, log zerolog.Logger) func() {
	loopCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				for _, sc := range cfg.Strategies {
					price, err := market.CurrentPrice(loopCtx, sc.Figi)
					if err != nil {
						log.Warn().Err(err).Str("figi", sc.Figi).Msg("mark price fetch failed")
						continue
					}
					account.MarkPrice(sc.Figi, price)
				}
			}
		}
	}()
	return cancel
}

func envBalance() float64 {
	const fallback = 100_000
	raw := os.Getenv("SANDBOX_BALANCE")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
