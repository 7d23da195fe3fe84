package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pairtrader/internal/api"
	"pairtrader/internal/bot"
	"pairtrader/internal/config"
	"pairtrader/internal/exchange"
	"pairtrader/internal/feed"
	"pairtrader/internal/repository"
	"pairtrader/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (overrides PAIRS_CONFIG)")
	feedPath := flag.String("feed", "", "path to JSON-lines cycle feed (overrides feed.path)")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *feedPath != "" {
		cfg.Feed.Path = *feedPath
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer logger.Sync()

	if err := run(cfg, logger.Logger); err != nil {
		logger.Fatal("trader stopped with error", zap.Error(err))
	}
	logger.Info("trader exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Feed.Path == "" {
		return errors.New("feed.path is required (set PAIRS_FEED_PATH or -feed)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Журнал сделок (необязателен)
	var (
		journal bot.TradeJournal
		deps    = &api.Dependencies{Logger: logger.With(zap.String("component", "http"))}
	)
	if cfg.Database.Enabled {
		db, err := initDatabase(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		trades := repository.NewTradeRepository(db)
		if err := trades.EnsureSchema(ctx); err != nil {
			return err
		}
		journal = trades
		deps.Trades = trades
		logger.Info("trade journal connected", zap.String("dsn", cfg.Database.DSNWithoutPassword()))
	}

	// Брокер и торговое ядро
	broker := exchange.NewPaperBroker(exchange.PaperConfig{
		RejectSymbols: cfg.Broker.RejectSymbols,
		CancelSymbols: cfg.Broker.CancelSymbols,
	}, logger)
	defer broker.Close()

	tickets := bot.NewTicketsManager(logger)
	broker.SubscribeOrders(tickets.OnOrderEvent)

	board := bot.NewStatusBoard()
	deps.Status = board

	engine := bot.NewExecutionManager(bot.EngineDeps{
		Pairs: bot.NewPairsManager(
			bot.TradingParamsFromConfig(cfg.Trading),
			bot.CooldownPolicyFromConfig(cfg.Cooldown),
			cfg.Trading.MaxArchivedCycles,
			logger,
		),
		Tickets:   tickets,
		Risk:      bot.NewRiskManagerFromConfig(cfg.Risk, logger),
		Executor:  bot.NewOrderExecutor(broker, logger),
		Portfolio: bot.NewPortfolio(cfg.Trading.StartingCapital, cfg.Risk.VolatilityLookback),
		Allocator: bot.NewQualityWeightedAllocator(cfg.Trading.MaxPairAllocation),
		Journal:   journal,
		Board:     board,
		MinTicket: cfg.Trading.MinTicket,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		return replay(ctx, cfg.Feed.Path, broker, engine, logger)
	})

	return group.Wait()
}

// replay прогоняет циклы из файла: сначала брокер исполняет ордера прошлого
// цикла по новым ценам, затем ядро обрабатывает цикл
func replay(ctx context.Context, path string, broker *exchange.PaperBroker, engine *bot.ExecutionManager, logger *zap.Logger) error {
	reader, err := feed.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	started := time.Now()
	cycles := 0
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("replay interrupted", zap.Int("cycles", cycles))
			return nil
		}

		cycle, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		broker.Advance(cycle.Time, cycle.Prices)
		engine.RunCycle(ctx, cycle)
		cycles++
	}

	fields := []zap.Field{
		zap.Int("cycles", cycles),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("pending_orders", broker.PendingCount()),
	}
	if last := engine.LastReport(); last != nil {
		fields = append(fields, zap.Float64("equity", last.Equity))
	}
	logger.Info("replay finished, serving diagnostics until shutdown", fields...)
	return nil
}

// initDatabase создает подключение к базе данных
func initDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
