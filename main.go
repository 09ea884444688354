package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sadopc/punchclock/internal/config"
	"github.com/sadopc/punchclock/internal/export"
	apphttp "github.com/sadopc/punchclock/internal/http"
	"github.com/sadopc/punchclock/internal/storage"
	"github.com/sadopc/punchclock/internal/store"
	"github.com/sadopc/punchclock/internal/store/mysql"
	"github.com/sadopc/punchclock/internal/store/sqlite"
	"github.com/sadopc/punchclock/internal/timer"
	"github.com/sadopc/punchclock/internal/tui"
)

func main() {
	serve := flag.Bool("serve", false, "run the HTTP API instead of the terminal UI")
	exportFmt := flag.String("export", "", "write all entries as csv or json and exit")
	out := flag.String("out", "", "export file path (default punchclock-export-DATE.EXT)")
	upload := flag.Bool("upload", false, "upload the export to the configured S3 bucket")
	user := flag.String("user", "", "user id (default user.id from config)")
	printToken := flag.Bool("token", false, "print an API token for the user and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of the token printed by -token")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	userID := cfg.User.ID
	if *user != "" {
		userID = *user
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *printToken:
		err = runToken(cfg, userID, *tokenTTL)
	case *exportFmt != "":
		err = runExport(ctx, cfg, logger, userID, *exportFmt, *out, *upload)
	case *serve:
		err = runServer(ctx, cfg, logger)
	default:
		err = runTUI(ctx, cfg, logger, userID)
	}
	if err != nil {
		stop()
		logger.Fatal(err)
	}
}

func runToken(cfg config.Config, userID string, ttl time.Duration) error {
	tok, err := apphttp.IssueToken(cfg.Auth.JWTSecret, userID, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

// openGateway opens the store selected by database.driver.
func openGateway(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (store.Gateway, func() error, error) {
	switch cfg.Database.Driver {
	case "mysql":
		st, err := mysql.New(ctx, cfg.Database.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		st, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
}

func buildUploader(ctx context.Context, cfg config.Config) (storage.Uploader, error) {
	if cfg.Storage.Bucket == "" {
		return nil, errors.New("storage.bucket is not configured")
	}
	client, err := storage.NewS3Client(ctx, storage.S3Config{
		Region:   cfg.Storage.Region,
		Endpoint: cfg.Storage.Endpoint,
		Profile:  cfg.AWS.Profile,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewS3Service(client), nil
}

func runServer(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return errors.New("auth.jwtsecret is required to serve the API")
	}

	gw, closeStore, err := openGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions := timer.NewSessions(gw, timer.WithLogger(logger))
	defer sessions.CloseAll()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler := apphttp.NewHandler(apphttp.Config{
		Sessions:    sessions,
		Gateway:     gw,
		JWTSecret:   cfg.Auth.JWTSecret,
		DefaultDays: cfg.Stats.Days,
		Logger:      logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
	logger.Info("server stopped")
	return nil
}

func runExport(ctx context.Context, cfg config.Config, logger *logrus.Logger, userID, format, out string, upload bool) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	gw, closeStore, err := openGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	now := time.Now()
	entries, projects, err := export.Collect(ctx, gw, userID, now)
	if err != nil {
		return err
	}
	if out == "" {
		out = fmt.Sprintf("punchclock-export-%s%s", now.Format("2006-01-02"), f.Ext())
	}
	if err := export.ToFile(out, f, entries, projects); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"path": out, "entries": len(entries)}).Info("export written")

	if !upload {
		return nil
	}
	u, err := buildUploader(ctx, cfg)
	if err != nil {
		return err
	}
	loc, err := storage.UploadFile(ctx, u, out, storage.UploadOptions{
		Bucket:      cfg.Storage.Bucket,
		KeyPrefix:   cfg.Storage.KeyPrefix,
		ContentType: f.ContentType(),
	})
	if err != nil {
		return err
	}
	logger.WithField("location", loc).Info("export uploaded")
	return nil
}

func runTUI(ctx context.Context, cfg config.Config, logger *logrus.Logger, userID string) error {
	if cfg.Database.Driver != "sqlite" {
		return errors.New("the terminal UI needs database.driver=sqlite")
	}

	// The alternate screen owns stdout, so logs go to a file.
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(logFile)
	defer func() {
		logger.SetOutput(os.Stderr)
		logFile.Close()
	}()

	st, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctl := timer.New(st, userID, timer.WithLogger(logger))
	defer ctl.Close()
	if _, err := ctl.Resume(ctx); err != nil {
		logger.WithError(err).Warn("could not resume timer")
	}

	deps := tui.Deps{
		Controller: ctl,
		Store:      st,
		Log:        logger,
		DailyGoal:  cfg.Goal.Daily,
		StatsDays:  cfg.Stats.Days,
		ExportDir:  exportDir(),
	}
	if cfg.Storage.Bucket != "" {
		u, err := buildUploader(ctx, cfg)
		if err != nil {
			logger.WithError(err).Warn("export uploads disabled")
		} else {
			deps.Uploader = u
			deps.Upload = storage.UploadOptions{Bucket: cfg.Storage.Bucket, KeyPrefix: cfg.Storage.KeyPrefix}
		}
	}

	p := tea.NewProgram(tui.NewApp(deps), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func exportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
