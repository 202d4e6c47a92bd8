package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/auth"
	"github.com/masivos/admin-gateway/internal/bff"
	"github.com/masivos/admin-gateway/internal/bulk"
	"github.com/masivos/admin-gateway/internal/config"
	"github.com/masivos/admin-gateway/internal/dashboard"
	"github.com/masivos/admin-gateway/internal/export"
	"github.com/masivos/admin-gateway/internal/pkg/distlock"
	"github.com/masivos/admin-gateway/internal/pkg/logger"
	"github.com/masivos/admin-gateway/internal/preview"
	"github.com/masivos/admin-gateway/internal/repository/postgres"
)

// checkPortAvailable fails fast when another process holds the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// extractHost returns the host part of a DSN for logging without credentials.
func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("masivos admin gateway (cmd/server)")

	cfgPath := "config/config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		logger.SetLevel(logger.ParseLevel(lvl))
	}

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := openDatabase(cfg.Database.URL)
	if db != nil {
		defer db.Close()
	}
	redisClient := openRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var store auth.SessionStore
	if cfg.Auth.SessionStore == "redis" && redisClient != nil {
		store = auth.NewRedisStore(redisClient)
		log.Println("Sessions stored in Redis")
	} else {
		mem := auth.NewMemoryStore()
		mem.StartCleanup(ctx, 10*time.Minute)
		store = mem
		log.Println("Sessions stored in memory")
	}

	authManager := auth.NewManager(cfg.Auth, cfg.Server.PublicURL, store)
	if authManager.Enabled() {
		if err := authManager.ValidateCredentials(ctx); err != nil {
			log.Printf("WARNING: identity provider check failed: %v", err)
		}
	} else {
		log.Println("WARNING: authentication disabled, forwarding the dev token")
	}

	client := apiclient.New(cfg, authManager)

	locks := distlock.NewProvider(redisClient, db, 10*time.Minute)
	log.Printf("Bulk operations locked with %s locks", locks.Backend())

	bulkOpts := []bulk.Option{}
	if db != nil {
		runs := postgres.NewBulkRunRepo(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			log.Printf("WARNING: bulk run journal disabled: %v", err)
		} else {
			bulkOpts = append(bulkOpts, bulk.WithJournal(runs))
			log.Println("Bulk runs journaled to PostgreSQL")
		}
	}
	bulkService := bulk.NewService(client, locks, bulkOpts...)

	var (
		exporter *export.Exporter
		bucket   bff.BucketChecker
	)
	sink, err := export.NewSink(ctx, cfg.Export)
	if err != nil {
		log.Printf("WARNING: list export disabled: %v", err)
	} else {
		exporter = export.NewExporter(client, sink)
		if s3Sink, ok := sink.(*export.S3Sink); ok {
			bucket = s3Sink
			log.Printf("List exports stored in s3://%s", s3Sink.Bucket())
		} else {
			log.Printf("List exports stored in %s", cfg.Export.LocalPath)
		}
	}

	health := bff.NewHealthChecker(cfg.Gateway.BackendURL, db, redisClient, bucket)

	server := bff.NewServer(bff.Deps{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		BackendURL:     cfg.Gateway.BackendURL,
		Auth:           authManager,
		Client:         client,
		Dashboard:      dashboard.NewService(client, cfg.Dashboard.UserID),
		Bulk:           bulkService,
		Exporter:       exporter,
		Preview:        preview.NewRenderer(),
		Health:         health,
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		log.Printf("Starting server on %s (backend %s)", addr, cfg.Gateway.BackendURL)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// openDatabase connects to PostgreSQL. It returns nil when no URL is
// configured or the database cannot be reached.
func openDatabase(dsn string) *sql.DB {
	if dsn == "" {
		log.Println("No DATABASE_URL, bulk runs are not journaled")
		return nil
	}
	if !strings.Contains(dsn, "connect_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "connect_timeout=5"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Printf("WARNING: opening database: %v", err)
		return nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Printf("WARNING: database %s unreachable: %v", extractHost(dsn), err)
		db.Close()
		return nil
	}
	log.Printf("Connected to PostgreSQL at %s", extractHost(dsn))
	return db
}

// openRedis connects to Redis. A nil client means local or advisory locks.
func openRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("WARNING: Redis unreachable (%v), falling back", err)
		client.Close()
		return nil
	}
	log.Printf("Connected to Redis at %s", opts.Addr)
	return client
}
