package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"forgeboard.dev/internal/audit"
	"forgeboard.dev/internal/auth"
	"forgeboard.dev/internal/httpapi"
	"forgeboard.dev/internal/obs"
	"forgeboard.dev/internal/store/pg"
	"forgeboard.dev/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev" // overridden via -ldflags at release builds
)

func main() {
	// Register metrics before anything can observe.
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("FORGEBOARD_PG_DSN")
	if dsn == "" {
		log.Fatal("missing DSN: set FORGEBOARD_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	feed := stream.New()
	auditLog := audit.NewLogger(store.Audit(), audit.WithPublisher(feed))
	sessions := auth.NewSessionService(store.Sessions(), store.Users())
	users := auth.NewUserService(store.Users())
	memberships := auth.NewMembershipService(store.Memberships())
	resolver := auth.NewResolver(store.Users(), store.Memberships())

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, httpapi.Services{
		Sessions:    sessions,
		Users:       users,
		Memberships: memberships,
		Resolver:    resolver,
		Audit:       auditLog,
		Stream:      feed,
	})

	addr := os.Getenv("FORGEBOARD_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Background maintenance: hourly session sweep, daily audit retention.
	c := cron.New()
	if _, err := c.AddFunc("0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		swept, err := sessions.SweepExpired(ctx)
		if err != nil {
			log.Printf("session sweep failed: %v", err)
			return
		}
		obs.ObserveSessionsSwept(swept)
		if swept > 0 {
			log.Printf("swept %d expired sessions", swept)
		}
	}); err != nil {
		log.Fatalf("schedule session sweep: %v", err)
	}
	if _, err := c.AddFunc("30 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		purged, err := auditLog.PurgeOlderThan(ctx, 90)
		if err != nil {
			log.Printf("audit retention failed: %v", err)
			return
		}
		if purged > 0 {
			log.Printf("purged %d audit entries past retention", purged)
		}
	}); err != nil {
		log.Fatalf("schedule audit retention: %v", err)
	}
	c.Start()

	log.Printf("Starting forgeboard-api %s on %s", version, srv.Addr)

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
	<-c.Stop().Done()
	_ = store.Close()
	log.Println("Stopped")
}
