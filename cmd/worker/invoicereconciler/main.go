package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"lnledger/config"
	"lnledger/internal/invoice"
	"lnledger/internal/ledger"
	"lnledger/internal/limits"
	"lnledger/internal/lndnode"
	"lnledger/internal/store"
	"lnledger/internal/worker"
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
	root := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
	configPath := config.Path(root).Join("config.toml")
	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
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

	node, err := lndnode.NewClient(lndnode.Config{
		GRPCHost:     Cfg.LND.GRPCHost,
		GRPCPort:     Cfg.LND.GRPCPort,
		TLSCertPath:  Cfg.LND.TLSCertPath,
		MacaroonPath: Cfg.LND.MacaroonPath,
		RPCTimeout:   time.Duration(Cfg.LND.RPCTimeoutS) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to lnd: %w", err)
	}
	defer node.Close()

	users := store.NewUserRepository(db)
	invoices := store.NewInvoiceRepository(db)
	invoiceLimits := limits.Config{
		Min:   ledger.Sat(Cfg.Limits.InvoiceMinSats).Msats(),
		Max:   ledger.Sat(Cfg.Limits.InvoiceMaxSats).Msats(),
		Daily: ledger.Sat(Cfg.Limits.InvoiceDailySats).Msats(),
	}
	svc := invoice.NewService(db, node, users, invoices, invoiceLimits)

	reconciler := invoice.NewReconciler(svc, invoices, db, node)
	worker.Start(reconciler)

	logger.Info("invoice reconciler worker running", zap.Duration("poll_interval", reconciler.Timeout()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	time.Sleep(1 * time.Second)
	logger.Info("invoice reconciler worker shut down gracefully")
	return nil
}
