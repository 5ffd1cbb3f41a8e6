package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/sahayak/internal/backend"
	"github.com/pavelanni/sahayak/internal/bot"
	"github.com/pavelanni/sahayak/internal/devbackend"
	"github.com/pavelanni/sahayak/internal/handler"
	appI18n "github.com/pavelanni/sahayak/internal/i18n"
	"github.com/pavelanni/sahayak/internal/llm"
	"github.com/pavelanni/sahayak/internal/llm/prompts"
	"github.com/pavelanni/sahayak/internal/model"
	"github.com/pavelanni/sahayak/internal/store"
	"github.com/pavelanni/sahayak/internal/workspace"
)

//go:generate templ generate

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sahayak",
		Short: "Learning assistant: chat, summaries and quizzes for your study material",
	}

	serve := serveCmd()
	root.AddCommand(serve, botCmd(), backendCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `sahayak --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addBackendFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("api-url", "http://localhost:8000", "Content service base URL")
	f.Duration("api-timeout", 3*time.Minute, "Timeout for content service requests")
	f.String("db", "sahayak.db", "SQLite database path for history (empty to disable)")
	f.StringP("lang", "l", "en", "Default UI language (en, hi)")
	f.Int("max-upload-mb", 10, "Maximum document size in MB")
	f.Duration("session-ttl", 2*time.Hour, "Idle time before a learning session is forgotten")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /learn)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	addBackendFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func botCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		RunE:  runBot,
	}
	f := cmd.Flags()
	f.String("telegram-token", "", "Telegram bot token (or set SAHAYAK_TELEGRAM_TOKEN)")
	f.Bool("debug", false, "Log Telegram API traffic")
	addBackendFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func backendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run a local content service backed by an OpenAI-compatible LLM",
		RunE:  runBackend,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.IntP("num-questions", "n", 5, "Number of questions per quiz")
	f.Int("max-content-kb", 256, "Maximum stored text per source in KB")
	f.Int("max-prompt-chars", prompts.DefaultMaxContentRunes, "Maximum characters of source text sent to the LLM per request")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export quiz results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "sahayak.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("since", "", "Only results completed on or after this date (YYYY-MM-DD)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SAHAYAK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("sahayak")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/sahayak")
	v.AddConfigPath("/etc/sahayak")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newManager builds the workspace manager shared by the web and bot
// surfaces. The returned cleanup closes the history database.
func newManager(v *viper.Viper) (*workspace.Manager, func(), error) {
	client, err := backend.New(backend.Options{
		BaseURL: v.GetString("api-url"),
		Timeout: v.GetDuration("api-timeout"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create backend client: %w", err)
	}

	var rec workspace.Recorder
	cleanup := func() {}
	if path := v.GetString("db"); path != "" {
		db, err := store.New(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		rec = db
		cleanup = func() { db.Close() }
	} else {
		slog.Info("history recording disabled")
	}

	return workspace.NewManager(client, rec, slog.Default()), cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// listen serves h on addr until ctx is cancelled, then shuts down gracefully.
func listen(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	manager, cleanup, err := newManager(v)
	if err != nil {
		return err
	}
	defer cleanup()

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	uiCfg := model.UIConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		MaxUploadMB:   v.GetInt("max-upload-mb"),
		SessionTTL:    v.GetDuration("session-ttl"),
	}

	h, err := handler.New(manager, uiCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)
	h.Mount(r)

	ctx, stop := signalContext()
	defer stop()
	go manager.RunSweeper(ctx, sweepInterval(uiCfg.SessionTTL), uiCfg.SessionTTL)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"api_url", v.GetString("api-url"),
		"lang", lang,
		"base_path", basePath,
		"max_upload_mb", uiCfg.MaxUploadMB,
		"session_ttl", uiCfg.SessionTTL,
	)
	return listen(ctx, addr, r)
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Minute
	}
	return min(max(ttl/4, time.Minute), 15*time.Minute)
}

func runBot(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	token := v.GetString("telegram-token")
	if token == "" {
		return fmt.Errorf("telegram token is required: set --telegram-token flag or SAHAYAK_TELEGRAM_TOKEN env var")
	}
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	manager, cleanup, err := newManager(v)
	if err != nil {
		return err
	}
	defer cleanup()

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("connect to Telegram: %w", err)
	}
	api.Debug = v.GetBool("debug")
	slog.Info("authorized on Telegram", "username", api.Self.UserName)

	b, err := bot.New(api, manager, bot.Options{
		MaxFileBytes: int64(v.GetInt("max-upload-mb")) << 20,
	})
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()
	ttl := v.GetDuration("session-ttl")
	go manager.RunSweeper(ctx, sweepInterval(ttl), ttl)

	slog.Info("starting bot", "api_url", v.GetString("api-url"))
	return b.Run(ctx)
}

func runBackend(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	llmClient, err := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	limits := contentLimitsFrom(v)
	llmClient.SetMaxContentRunes(limits.promptRunes)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	srv, err := devbackend.New(devbackend.Options{
		Engine:          llmClient,
		NumQuestions:    v.GetInt("num-questions"),
		MaxContentBytes: limits.storedBytes,
		Logger:          slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/", srv.Routes())

	ctx, stop := signalContext()
	defer stop()

	addr := v.GetString("addr")
	slog.Info("starting content service",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"num_questions", v.GetInt("num-questions"),
	)
	return listen(ctx, addr, r)
}

// contentLimits separates the two text caps of the local backend: bytes
// kept per source, and characters of that text placed in a prompt.
type contentLimits struct {
	storedBytes int
	promptRunes int
}

func contentLimitsFrom(v *viper.Viper) contentLimits {
	return contentLimits{
		storedBytes: v.GetInt("max-content-kb") << 10,
		promptRunes: v.GetInt("max-prompt-chars"),
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	var since time.Time
	if s := v.GetString("since"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return fmt.Errorf("invalid --since date %q: %w", s, err)
		}
		since = t
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportResults(since)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported quiz results", "count", len(export.Results))
	return nil
}
