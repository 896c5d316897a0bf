package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/httpapi"
	"parley.chat/internal/obs"
	"parley.chat/internal/store/memory"
	"parley.chat/internal/store/pg"
)

var version = "0.3.1"

// backend is what both storage implementations provide beyond auth.Store.
type backend interface {
	auth.Store
	Conversations() chat.Store
	Messages() chat.MessageStore
	Ping(ctx context.Context) error
}

func main() {
	obs.Init()

	secret := os.Getenv("PARLEY_AUTH_SECRET")
	codec, err := auth.NewCodec(secret)
	if err != nil {
		log.Fatalf("PARLEY_AUTH_SECRET: %v", err)
	}

	var (
		st    backend
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("PARLEY_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = pgStore.EnsureSchema(ctx,
			memory.SeedAdminID, memory.SeedAdminUsername, memory.SeedAdminHash)
		cancel()
		if err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		st = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		st = memory.New()
	}

	svcOpts := []auth.ServiceOption{}
	if mins := envInt("PARLEY_ACCESS_TTL_MINUTES"); mins > 0 {
		svcOpts = append(svcOpts, auth.WithAccessTTL(time.Duration(mins)*time.Minute))
	}
	if days := envInt("PARLEY_REFRESH_TTL_DAYS"); days > 0 {
		svcOpts = append(svcOpts, auth.WithRefreshTTL(time.Duration(days)*24*time.Hour))
	}
	if id, sec := os.Getenv("PARLEY_CLIENT_ID"), os.Getenv("PARLEY_CLIENT_SECRET"); id != "" || sec != "" {
		svcOpts = append(svcOpts, auth.WithClientCredentials(id, sec))
	}

	api := httpapi.New(httpapi.Config{
		Store:      st,
		Authorizer: auth.NewAuthorizer(codec, st),
		Auth:       auth.NewService(st, codec, svcOpts...),
		Chat:       chat.NewService(st.Conversations(), st.Messages()),
		ReadyProbe: probe,
		Version:    version,
	})

	addr := os.Getenv("PARLEY_ADDR")
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

	log.Printf("Starting parley-api %s on %s", version, srv.Addr)

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

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", key, raw)
	}
	return val
}
