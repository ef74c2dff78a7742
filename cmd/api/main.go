package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"lnledger/config"
	"lnledger/internal/deposit"
	"lnledger/internal/httpapi"
	"lnledger/internal/invoice"
	"lnledger/internal/ledger"
	"lnledger/internal/limits"
	"lnledger/internal/lndnode"
	"lnledger/internal/payment"
	"lnledger/internal/ratelimit"
	"lnledger/internal/store"
	"lnledger/internal/withdrawal"
	"lnledger/pkg/cache"
	"lnledger/pkg/logger"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

var Cfg config.ApiConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	configPath := config.Path(root).Join("config.toml")

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if Cfg.RateLimit.UseRedis {
		var redisCfg cache.Config
		if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
			return fmt.Errorf("failed to copy cache config: %w", err)
		}
		if err := cache.Init(redisCfg); err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		defer cache.Close()
	}

	var dbCfg store.Config
	if err := copier.Copy(&dbCfg, &Cfg.Database); err != nil {
		return fmt.Errorf("failed to copy database config: %w", err)
	}
	db, err := store.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger.GetEnv() == "development" {
		seedUsers := store.NewUserRepository(db)
		seedTokens := store.NewAuthTokenRepository(db)
		if err := store.SeedDevelopmentData(context.Background(), db, seedUsers, seedTokens); err != nil {
			return fmt.Errorf("failed to seed development data: %w", err)
		}
	}

	lndCfg := lndnode.Config{
		GRPCHost:      Cfg.LND.GRPCHost,
		GRPCPort:      Cfg.LND.GRPCPort,
		TLSCertPath:   Cfg.LND.TLSCertPath,
		MacaroonPath:  Cfg.LND.MacaroonPath,
		FirstBlock:    Cfg.LND.FirstBlock,
		RPCTimeout:    time.Duration(Cfg.LND.RPCTimeoutS) * time.Second,
		SendTimeout:   time.Duration(Cfg.LND.SendTimeoutS) * time.Second,
		ProbeTimeout:  time.Duration(Cfg.LND.ProbeTimeoutS) * time.Second,
		StreamTimeout: 30 * 24 * time.Hour,
	}
	node, err := lndnode.NewClient(lndCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to lnd: %w", err)
	}
	defer node.Close()

	users := store.NewUserRepository(db)
	tokens := store.NewAuthTokenRepository(db)
	depositAddrs := store.NewDepositAddressRepository(db)
	deposits := store.NewDepositRepository(db)
	reservations := store.NewReservationRepository(db)
	withdrawals := store.NewWithdrawalRepository(db)
	invoices := store.NewInvoiceRepository(db)
	payments := store.NewPaymentRepository(db)

	paymentLimits := limits.Config{
		Min:   ledger.Sat(Cfg.Limits.PaymentMinSats).Msats(),
		Max:   ledger.Sat(Cfg.Limits.PaymentMaxSats).Msats(),
		Daily: ledger.Sat(Cfg.Limits.PaymentDailySats).Msats(),
	}
	invoiceLimits := limits.Config{
		Min:   ledger.Sat(Cfg.Limits.InvoiceMinSats).Msats(),
		Max:   ledger.Sat(Cfg.Limits.InvoiceMaxSats).Msats(),
		Daily: ledger.Sat(Cfg.Limits.InvoiceDailySats).Msats(),
	}

	server := &httpapi.Server{
		Tokens:     tokens,
		Users:      users,
		DB:         db,
		Deposit:    deposit.NewService(db, node, depositAddrs, deposits),
		Withdrawal: withdrawal.NewService(db, node, users, reservations, withdrawals, withdrawal.NetworkParams(Cfg.LND.Network)),
		Invoice:    invoice.NewService(db, node, users, invoices, invoiceLimits),
		Payment:    payment.NewService(db, node, users, reservations, payments, paymentLimits),
	}

	limiter := ratelimit.New(ratelimit.Config{
		Limit: Cfg.RateLimit.Limit,
		Span:  time.Duration(Cfg.RateLimit.SpanS) * time.Second,
	}, Cfg.RateLimit.UseRedis)

	router := httpapi.NewRouter(server, tokens, limiter)

	httpServer := &http.Server{
		Addr:         ":8080",
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Info("api server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server stopped unexpectedly", zap.Error(err))
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during http server shutdown", zap.Error(err))
	}

	cancel()
	time.Sleep(1 * time.Second)
	logger.Info("api server shut down gracefully")

	return nil
}
