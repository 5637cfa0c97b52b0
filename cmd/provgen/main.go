package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/provgen/provgen/internal/exam"
	"github.com/provgen/provgen/internal/grade"
	"github.com/provgen/provgen/internal/handler"
	"github.com/provgen/provgen/internal/history"
	"github.com/provgen/provgen/internal/llm"
	"github.com/provgen/provgen/internal/prompt"
	"github.com/provgen/provgen/internal/train"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "provgen",
		Short: "Mock exam generator and grader powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve)

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `provgen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "provgen.db", "SQLite history database path (empty disables history)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty for the OpenAI default)")
	f.String("llm-key", "", "API key for the completion service")
	f.String("llm-model", "gpt-4o-mini", "Completion model name")
	f.String("llm-model-train", "", "Model for training-material synthesis (empty falls back to llm-model)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("PROVGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("provgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/provgen")
	v.AddConfigPath("/etc/provgen")
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

func runServe(cmd *cobra.Command, _ []string) error {
	// Load .env before viper reads the environment.
	_ = godotenv.Load()

	setupLogging(cmd)
	v := viperForCmd(cmd)

	prompts, err := prompt.NewBuilder()
	if err != nil {
		return fmt.Errorf("load prompt catalogs: %w", err)
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	var hist *history.Store
	if dbPath := v.GetString("db"); dbPath != "" {
		hist, err = history.New(dbPath)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer hist.Close()
	} else {
		slog.Info("history disabled")
	}

	h := handler.New(
		exam.NewGenerator(llmClient, prompts),
		grade.NewGrader(llmClient, prompts),
		train.NewSynthesizer(llmClient, prompts, v.GetString("llm-model-train")),
		hist,
		llmClient,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"train_model", v.GetString("llm-model-train"),
		"llm_url", v.GetString("llm-url"),
		"history", v.GetString("db"),
	)
	return http.ListenAndServe(addr, r)
}
