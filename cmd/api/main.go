package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kars.dev/internal/asset"
	"kars.dev/internal/attest"
	"kars.dev/internal/audit"
	"kars.dev/internal/auth"
	"kars.dev/internal/config"
	"kars.dev/internal/httpapi"
	"kars.dev/internal/mail"
	"kars.dev/internal/obs"
	"kars.dev/internal/oidc"
	"kars.dev/internal/passkey"
	"kars.dev/internal/report"
	"kars.dev/internal/settings"
	"kars.dev/internal/store"
)

var version = "1.0.0"

// holderDirectory feeds campaign targeting from active asset holders.
type holderDirectory struct {
	assets *asset.Service
}

func (h holderDirectory) ListHolders(ctx context.Context) ([]attest.EmployeeRef, error) {
	items, err := h.assets.List(ctx, asset.Filter{Status: asset.StatusActive})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(items))
	refs := make([]attest.EmployeeRef, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.EmployeeEmail]; ok {
			continue
		}
		seen[it.EmployeeEmail] = struct{}{}
		refs = append(refs, attest.EmployeeRef{
			Email:     it.EmployeeEmail,
			Name:      it.EmployeeName,
			CompanyID: it.CompanyID,
		})
	}
	return refs, nil
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("KARS_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("config: KARS_AUTH_SECRET is required")
	}

	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	authStore := auth.NewSQLStore(db)
	authSvc := auth.NewService(authStore)
	assetSvc := asset.NewService(asset.NewSQLStore(db))
	settingsSvc := settings.NewService(settings.NewSQLStore(db))
	auditLog := audit.NewLog(audit.NewSQLStore(db))
	reportSvc := report.NewService(db)

	mailer := mail.NewSMTPMailer(settingsSvc, cfg)
	notifier := mail.NewNotifier(mailer, cfg.FrontendURL)

	attestSvc := attest.NewService(attest.NewSQLStore(db), authStore.Users(context.Background()),
		attest.WithNotifier(notifier),
		attest.WithHolderDirectory(holderDirectory{assets: assetSvc}),
	)

	var oidcSvc *oidc.Service
	if cfg.OIDCEnabled() {
		oidcSvc = oidc.NewService(cfg, authStore.Users(context.Background()))
	}

	passkeySvc, err := passkey.NewService(cfg, passkey.NewSQLStore(db), authStore.Users(context.Background()))
	if err != nil {
		log.Fatalf("passkeys: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Auth:               authSvc,
		Assets:             assetSvc,
		Attest:             attestSvc,
		Reports:            reportSvc,
		Settings:           settingsSvc,
		Audit:              auditLog,
		Notifier:           notifier,
		OIDC:               oidcSvc,
		Passkeys:           passkeySvc,
		AccessTTL:          cfg.AccessTTL,
		FrontendURL:        cfg.FrontendURL,
		Version:            version,
		ReadyProbe:         httpapi.ReadyProbe{DB: db.DB},
		RateLimitPerSecond: cfg.RateLimitPerSec,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting kars-api %s on %s (%s)", version, srv.Addr, cfg.DBDriver)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Token purges piggyback on a modest ticker instead of a scheduler.
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	defer purgeCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-purgeCtx.Done():
				return
			case <-ticker.C:
				if err := authSvc.PurgeExpiredTokens(purgeCtx); err != nil {
					obs.LogError("token purge failed", err, nil)
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
