package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dyinvoice.org/internal/httpapi"
	"dyinvoice.org/internal/identity"
	"dyinvoice.org/internal/obs"
	"dyinvoice.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("DYINVOICE_COMMIT"))

	secret := os.Getenv("DYINVOICE_AUTH_SECRET")
	if secret == "" {
		log.Fatal("DYINVOICE_AUTH_SECRET is required")
	}

	codecOpts := []identity.CodecOption{}
	if raw := os.Getenv("DYINVOICE_TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse DYINVOICE_TOKEN_TTL: %v", err)
		}
		codecOpts = append(codecOpts, identity.WithTokenTTL(ttl))
	}
	codec, err := identity.NewCodec(secret, codecOpts...)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	var (
		store identity.Store
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("DYINVOICE_PG_DSN"); dsn != "" {
		pgOpts := []pg.Option{}
		if raw := os.Getenv("DYINVOICE_STORAGE_TIMEOUT"); raw != "" {
			timeout, err := time.ParseDuration(raw)
			if err != nil {
				log.Fatalf("parse DYINVOICE_STORAGE_TIMEOUT: %v", err)
			}
			pgOpts = append(pgOpts, pg.WithTimeout(timeout))
		}
		pgStore, err := pg.Open(dsn, pgOpts...)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Print("DYINVOICE_PG_DSN not set, using in-memory store")
		store = identity.NewInMemory()
	}

	svc, err := identity.NewService(store, codec)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}

	// The role catalog must exist before the first registration can be
	// accepted; refuse to serve if it cannot be established.
	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.Bootstrap(bootCtx); err != nil {
		cancel()
		log.Fatalf("bootstrap roles: %v", err)
	}
	cancel()

	addr := os.Getenv("DYINVOICE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	api := httpapi.New(probe, version, svc)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting dyinvoice-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
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
