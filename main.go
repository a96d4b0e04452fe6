package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/gorodbot/server/internal/agent/graph"
	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/repo"
	"github.com/gorodbot/server/internal/core"
	"github.com/gorodbot/server/internal/server"
	logx "github.com/gorodbot/server/pkg/logger"
	pkgredis "github.com/gorodbot/server/pkg/redis"
)

// AppConfig collects every configurable parameter of the assistant,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Env   string `envconfig:"APP_ENV" default:"development"`
	Redis pkgredis.Config
	Addr  string `envconfig:"HTTP_ADDR" default:":8080"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Assistant configs
	Router       model.RouterModelConfig
	Response     model.ResponseModelConfig
	Conversation model.ConversationConfig
	Resilience   model.ResilienceConfig
	CityAPI      model.CityAPIConfig
	Search       model.SearchConfig
}

func loadConfig() (*AppConfig, error) {
	if err := godotenv.Load(".env"); err != nil {
		logx.Debug().Err(err).Msg("no .env file loaded")
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Env)})
	return &cfg, nil
}

func graphConfig(cfg *AppConfig, threads model.ThreadRepository) graph.Config {
	return graph.Config{
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		RouterModel:   cfg.Router,
		ResponseModel: cfg.Response,
		Conversation:  cfg.Conversation,
		Resilience:    cfg.Resilience,
		CityAPI:       cfg.CityAPI,
		Search:        cfg.Search,
		ThreadRepo:    threads,
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ttl, err := time.ParseDuration(cfg.Conversation.TTL)
			if err != nil {
				return fmt.Errorf("invalid CONVERSATION_TTL %q: %w", cfg.Conversation.TTL, err)
			}

			rdb, err := cfg.Redis.New()
			if err != nil {
				return fmt.Errorf("initialise redis client: %w", err)
			}
			defer rdb.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			threads := repo.NewRedisThreadRepository(rdb, ttl)
			runner, err := graph.BuildAssistant(ctx, graphConfig(cfg, threads))
			if err != nil {
				return fmt.Errorf("build assistant: %w", err)
			}

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           server.NewRouter(&server.ChatHandlers{Runner: runner}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logx.Info().Str("addr", cfg.Addr).Msg("http server listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logx.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			}
		},
	}
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive console chat with in-memory history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			runner, err := graph.BuildAssistant(ctx, graphConfig(cfg, repo.NewMemoryThreadRepository()))
			if err != nil {
				return fmt.Errorf("build assistant: %w", err)
			}

			threadID := server.ThreadKey(fmt.Sprintf("console-%d", time.Now().UnixNano()))
			fmt.Println("Готова помочь с городскими услугами Санкт-Петербурга. Пустая строка для выхода.")

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				query := strings.TrimSpace(scanner.Text())
				if query == "" {
					return nil
				}

				result, err := runner.HandleTurn(ctx, threadID, query)
				if err != nil {
					logx.Error().Err(err).Msg("turn failed")
					continue
				}
				fmt.Println(result.ResponseText)
			}
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:           "gorodbot",
		Short:         "Conversational assistant for Saint Petersburg city services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newChatCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		logx.Fatal().Err(err).Msg("command failed")
	}
}
