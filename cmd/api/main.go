package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brightdoor/brokerchat/internal/config"
	"github.com/brightdoor/brokerchat/internal/handler"
	"github.com/brightdoor/brokerchat/internal/repository"
	"github.com/brightdoor/brokerchat/internal/service/ai"
	"github.com/brightdoor/brokerchat/internal/service/detect"
	"github.com/brightdoor/brokerchat/internal/service/dispatch"
	"github.com/brightdoor/brokerchat/internal/service/resolve"
	"github.com/brightdoor/brokerchat/internal/service/session"
	"github.com/brightdoor/brokerchat/internal/service/workspace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Pick the session store and context lookup backend.
	var (
		store  session.Store
		lookup resolve.Lookup
	)
	if cfg.Database.Enabled() {
		if err := repository.RunMigrations(cfg.Database.URL); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		pool, err := repository.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pool.Close()

		store = session.NewPostgresStore(pool)
		lookup = repository.NewContextRepository(pool)
		log.Println("Postgres store initialized successfully")
	} else {
		store = session.NewMemoryStore()
		lookup = repository.NewStaticContext()
		log.Println("DATABASE_URL not set, using in-memory store with demo context data")
	}

	hub := workspace.NewHub()
	resolver := resolve.New(lookup, hub, cfg.Panel.ContextFetchTimeout)

	// Initialize AI-backed dispatch when credentials are present; the rest
	// of the API stays usable without it.
	var dispatcher *dispatch.Dispatcher
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without assistant functionality - check Ark model environment variables")
		} else {
			var detector detect.Detector
			if cfg.AI.DetectionEnabled {
				llmDetector, err := detect.NewLLMDetector(ctx, aiService.GetChatModel())
				if err != nil {
					log.Printf("warning: failed to initialize entity detector: %v", err)
					log.Println("continuing without entity detection")
				} else {
					detector = llmDetector
				}
			} else {
				log.Println("Entity detection disabled by configuration")
			}
			dispatcher = dispatch.New(store, aiService, detector, hub, resolver, cfg.Panel.DetectTimeout)
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, skipping AI initialization")
	}

	router := handler.NewRouter(store, dispatcher, hub, resolver)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Brokerchat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
