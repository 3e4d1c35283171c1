package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceauth/internal/api"
	"github.com/your-org/faceauth/internal/api/ws"
	"github.com/your-org/faceauth/internal/auth"
	"github.com/your-org/faceauth/internal/capture"
	"github.com/your-org/faceauth/internal/config"
	"github.com/your-org/faceauth/internal/enroll"
	"github.com/your-org/faceauth/internal/liveness"
	"github.com/your-org/faceauth/internal/matcher"
	"github.com/your-org/faceauth/internal/models"
	"github.com/your-org/faceauth/internal/observability"
	"github.com/your-org/faceauth/internal/queue"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/internal/verify"
	"github.com/your-org/faceauth/internal/vision"
	"github.com/your-org/faceauth/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting faceauth API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database, cfg.Vision.EmbeddingDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	images, err := storage.NewImageStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := images.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Consume verification events: persist them and broadcast to
	// WebSocket subscribers.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.VerifyEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			return err
		}

		if err := db.InsertVerifyEvent(ctx, &ev); err != nil {
			slog.Error("store verify event", "error", err)
		}

		hub.BroadcastEvent(&dto.VerifyEventResponse{
			ID:         ev.ID,
			AccountID:  ev.AccountID,
			Outcome:    ev.Outcome,
			IdentityID: ev.IdentityID,
			Distance:   ev.Distance,
			Confidence: ev.Confidence,
			CreatedAt:  ev.CreatedAt.Format(time.RFC3339),
		})

		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Initialize ONNX Runtime for face detection and embedding
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("onnx runtime init failed", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	onnx, err := vision.NewONNXProvider(cfg.Vision)
	if err != nil {
		slog.Error("load vision models", "error", err)
		os.Exit(1)
	}
	defer onnx.Close()
	provider := vision.WithRetry(onnx)

	m := matcher.New(db, cfg.Match.VerificationThreshold)
	enroller := enroll.New(db, m, images, producer, cfg.Match.DuplicateThreshold)

	guard := capture.NewGuard()
	verifier := verify.NewService(m, provider, guard, producer, verify.Config{
		LivenessEnabled: cfg.Liveness.Enabled,
		Liveness: liveness.Config{
			ClosedThreshold: cfg.Liveness.ClosedThreshold,
			OpenThreshold:   cfg.Liveness.OpenThreshold,
			ClosedFrames:    cfg.Liveness.ClosedFrames,
			ReopenWindow:    cfg.Liveness.ReopenWindow,
			BaselineFrames:  cfg.Liveness.BaselineFrames,
			Deadline:        cfg.Liveness.Deadline,
		},
		Timeout: cfg.Verify.Timeout,
	})

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		DB:       db,
		Images:   images,
		Producer: producer,
		Hub:      hub,
		Tokens:   tokens,
		Enroller: enroller,
		Verifier: verifier,
		Provider: provider,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
