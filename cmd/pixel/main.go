// Package main is the pixel CLI: an HTTP chat host, a terminal chat host and
// a few maintenance commands over the local conversation store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gwi.com/pixel-chat/internal/api"
	"gwi.com/pixel-chat/internal/config"
	"gwi.com/pixel-chat/internal/core"
	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
	"gwi.com/pixel-chat/internal/terminal"
)

var version = "0.1.0" // Set at build time

var historyCount int

var rootCmd = &cobra.Command{
	Use:   "pixel",
	Short: "Pixel - a cheerful chat assistant backed by a hosted LLM",
	Long: `Pixel chats with a hosted chat-completion model and keeps your
conversations in a local data directory so they can be resumed later.`,
	SilenceUsage: true,
	RunE:         runChat,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat over a JSON HTTP API",
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	RunE:  runChat,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent conversations",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("Pixel v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("data-dir", ".", "Directory holding conversations and preferences")
	flags.String("storage", store.BackendJSON, "Storage backend (json|sqlite)")
	flags.String("log-level", "info", "Set log level (debug|info|warn|error)")
	flags.String("log-file", "", "Write logs to file instead of stderr")
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	historyCmd.Flags().IntVarP(&historyCount, "count", "n", 10, "Number of conversations to show")

	bindings := map[string]*cobra.Command{
		config.KeyDataDir:  rootCmd,
		config.KeyStorage:  rootCmd,
		config.KeyLogLevel: rootCmd,
		config.KeyLogFile:  rootCmd,
	}
	for key, cmd := range bindings {
		if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flagName(key))); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", key, err)
			os.Exit(1)
		}
	}
	if err := viper.BindPFlag(config.KeyHTTPAddr, serveCmd.Flags().Lookup("addr")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding addr flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	core.Version = version
}

// flagName maps a config key such as data_dir to its flag, data-dir.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// setup loads configuration, configures logging and opens the chat service.
func setup() (*core.ChatService, config.Config, error) {
	cfg, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, cfg, err
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, cfg, fmt.Errorf("configuring logger: %w", err)
	}

	st, err := store.Open(cfg.Storage, cfg.DataDir)
	if err != nil {
		return nil, cfg, err
	}
	logger.Debug("Store opened", "backend", cfg.Storage, "dir", cfg.DataDir)

	chatService := core.NewChatService(st, core.NewLLMService(nil))
	chatService.ApplyOverrides(cfg.Overrides)
	return chatService, cfg, nil
}

func runChat(_ *cobra.Command, _ []string) error {
	chatService, _, err := setup()
	if err != nil {
		return err
	}
	defer chatService.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repl := terminal.NewREPL(chatService, os.Stdin, os.Stdout, terminal.NewMarkdownRenderer(100))
	if err := repl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runHistory(_ *cobra.Command, _ []string) error {
	chatService, _, err := setup()
	if err != nil {
		return err
	}
	defer chatService.Close()

	terminal.PrintHistory(os.Stdout, chatService.ListRecent(historyCount))
	return nil
}

func runServe(_ *cobra.Command, _ []string) error {
	chatService, cfg, err := setup()
	if err != nil {
		return err
	}
	defer chatService.Close()

	apiHandler := api.NewAPIHandler(chatService)
	router := api.NewRouter(apiHandler)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // completions can take a while
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server. Press Ctrl+C to quit.", "addr", cfg.HTTPAddr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("could not listen on %s: %w", cfg.HTTPAddr, err)
		}
	}
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exiting gracefully")
	return nil
}
