package main

import (
	"log/slog"
	"os"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/beneficiary"
	"github.com/dravya/backend/internal/config"
	"github.com/dravya/backend/internal/dashboard"
	"github.com/dravya/backend/internal/ledger"
	"github.com/dravya/backend/internal/payout"
	"github.com/dravya/backend/internal/provider"
	"github.com/dravya/backend/internal/router"
	"github.com/dravya/backend/internal/store"
	"github.com/dravya/backend/internal/topup"
	"github.com/dravya/backend/internal/validation"
	"github.com/dravya/backend/internal/vendor"
)

type app struct {
	auth     auth.Service
	payouts  payout.Engine
	handlers router.Handlers
}

// build wires services and their HTTP handlers over st.
func build(st store.Store, rail provider.Provider, cfg config.Config, logger *slog.Logger) app {
	validator, err := validation.New()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	authSvc := auth.NewService(st, auth.Config{Secret: []byte(cfg.JWTSecret), Currency: cfg.Currency}, logger)
	ledgerSvc := ledger.NewService(st, logger)
	topupSvc := topup.NewService(st, ledgerSvc, topup.Config{MaxTopUp: cfg.MaxTopUp}, logger)
	beneficiarySvc := beneficiary.NewService(st, logger)
	engine := payout.NewEngine(st, ledgerSvc, rail, payout.Config{ProviderTimeout: cfg.ProviderTimeout}, logger)
	vendorSvc := vendor.NewService(st, logger)
	dashSvc := dashboard.NewService(st, engine, vendorSvc, logger)

	return app{
		auth:    authSvc,
		payouts: engine,
		handlers: router.Handlers{
			Auth:          auth.NewHandler(authSvc, validator, logger),
			Wallet:        ledger.NewHandler(ledgerSvc, logger),
			TopUps:        topup.NewHandler(topupSvc, validator, logger),
			Beneficiaries: beneficiary.NewHandler(beneficiarySvc, validator, logger),
			Payouts:       payout.NewHandler(engine, validator, logger),
			Vendors:       vendor.NewHandler(vendorSvc, logger),
			Dashboard:     dashboard.NewHandler(dashSvc, logger),
		},
	}
}
