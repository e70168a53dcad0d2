package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rolerag/internal/adapter/auth"
	"rolerag/internal/adapter/fs"
	"rolerag/internal/server"
	"rolerag/internal/usecase"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the login and chat API",
	Long: `Serve GET /login, GET /test, POST /chat and GET /healthz.

The index is read from index.path. Send SIGHUP to reload it after an
out-of-process ingest, or pass --watch to re-ingest when the corpus changes.

Examples:
  rolerag serve
  rolerag serve --addr :8000 --watch`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "re-ingest when the corpus changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	logger := GetLogger()
	ctx := cmd.Context()

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveWatch {
		cfg.Server.Watch = true
	}

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	idx, err := openServeIndex(cfg, embedder, logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	ingest, err := newIngestUseCase(cfg, embedder, idx, logger)
	if err != nil {
		return err
	}
	if cfg.Index.Backend == "memory" {
		result, err := ingest.Ingest(ctx, cfg.Corpus.Root)
		if err != nil {
			return fmt.Errorf("initial ingestion failed: %w", err)
		}
		logger.Info("corpus ingested into memory index", "chunks", result.Chunks, "duration", result.Duration)
	} else if stats := idx.Stats(); stats.Chunks == 0 {
		logger.Warn("index is empty; run 'rolerag ingest' or serve with --watch", "path", cfg.Index.Path)
	}

	users, err := auth.NewStore(cfg.Auth.Users, 0, logger)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	if users.Len() == 0 {
		logger.Warn("no users configured; /login will reject every request")
	}

	retriever := usecase.NewRetriever(idx, newQueryEmbedder(embedder, cfg.Retrieve), retrieveOptions(cfg.Retrieve), logger)
	chat := usecase.NewChatService(retriever, newSummarizer(cfg.Summarizer, logger), logger)

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(server.Options{
		Addr:          cfg.Server.Addr,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		TrustBodyRole: cfg.Server.TrustBodyRole,
	}, users, chat, idx, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })

	reloader, canReload := idx.(interface{ Reload() error })
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				if !canReload {
					logger.Warn("index backend does not support reload", "backend", cfg.Index.Backend)
					continue
				}
				if err := reloader.Reload(); err != nil {
					logger.Error("index reload failed", "error", err)
					continue
				}
				logger.Info("index reloaded", "chunks", idx.Stats().Chunks)
			}
		}
	})

	if cfg.Server.Watch {
		watcher := fs.NewWatcher(cfg.Corpus.Root, cfg.Server.WatchDebounce, logger)
		g.Go(func() error {
			return watcher.Run(ctx, func(ctx context.Context) {
				if _, err := ingest.Ingest(ctx, cfg.Corpus.Root); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("re-ingestion failed, keeping previous index", "error", err)
				}
			})
		})
	}

	return g.Wait()
}
