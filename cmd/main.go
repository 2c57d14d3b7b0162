package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/joho/godotenv"

	"logane/internal/config"
	"logane/internal/handlers"
	"logane/internal/keywallet"
	"logane/internal/ledger"
	"logane/internal/provider"
	"logane/internal/services"
	"logane/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	// 1. Load .env (if any) and the configuration
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warningf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging
	var out io.Writer = io.Discard
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			logger.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		out = f
	}
	defer logger.Init("logane", cfg.Verbose, false, out).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize the wallet session
	reg := cfg.Registry()
	var injected any
	if cfg.Wallet.PrivateKey != "" {
		opts := []keywallet.Option{keywallet.WithChain(reg.Default().ChainID)}
		if cfg.Wallet.AutoApprove {
			opts = append(opts, keywallet.Authorized())
		}
		wallet, err := keywallet.FromHex(cfg.Wallet.PrivateKey, reg.All(), opts...)
		if err != nil {
			logger.Fatalf("Failed to load wallet: %v", err)
		}
		injected = wallet
		logger.Infof("Wallet %s loaded", session.FormatAddress(wallet.Address().Hex()))
	} else {
		logger.Warningf("No wallet key configured, writes to a live contract will fail")
	}
	p := provider.Adapt(injected)
	walletSession := session.New(p, reg.Default())
	walletSession.Start(ctx)
	defer walletSession.Close()

	// 4. Initialize the ledger gateway and the raffle service
	gateway := ledger.New(reg, p, ledger.WithChainSource(func() uint64 {
		return walletSession.Snapshot().ChainID()
	}))
	raffleService := services.NewRaffleService(walletSession, gateway)

	// 5. Start the background balance refresher
	go raffleService.RunBalanceRefresh(ctx, cfg.Wallet.BalanceRefresh)

	// 6. Set up the Gin router
	gin.SetMode(cfg.Server.GinMode)
	r := gin.Default()
	handlers.NewHTTPHandler(raffleService, reg).RegisterRoutes(r)

	// 7. Run the server
	go func() {
		logger.Infof("Server starting on http://localhost:%s (ledger: %s)", cfg.Server.Port, gateway.Mode())
		if err := r.Run(":" + cfg.Server.Port); err != nil {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()
	<-ctx.Done()
	logger.Infof("Shutting down")
}
