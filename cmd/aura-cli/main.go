package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/peterh/liner"

	"github.com/antoniostano/aura/internal/account"
	"github.com/antoniostano/aura/internal/brain"
	"github.com/antoniostano/aura/internal/config"
	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/kv"
	"github.com/antoniostano/aura/internal/observability"
	"github.com/antoniostano/aura/internal/prefs"
	"github.com/antoniostano/aura/internal/shell"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	log.SetOutput(io.Discard)

	ctx := context.Background()
	catalog, err := i18n.Load()
	if err != nil {
		fatal("string tables: %v", err)
	}
	store, err := kv.NewStore(ctx, cfg.StoreURL)
	if err != nil {
		fatal("store init failed: %v", err)
	}
	defer store.Close()

	provider, err := brain.NewProvider(ctx, brain.Config{
		Mode:          cfg.ModelProvider,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
	})
	if err != nil {
		fatal("model provider init failed: %v", err)
	}
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}

	app, err := shell.New(ctx, shell.Config{
		Catalog:  catalog,
		Prefs:    prefs.NewService(store),
		Accounts: account.NewStore(store, account.NewBcryptHasher(cfg.BcryptCost)),
		Provider: provider,
		Metrics:  observability.NewMetrics(cfg.MetricsNamespace + "_cli"),
	})
	if err != nil {
		fatal("app init failed: %v", err)
	}
	defer app.Close()

	r := newRepl(app, os.Stdout)
	events, unsubscribe := app.Subscribe()
	go r.printEvents(events)
	defer unsubscribe()

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()
	historyFile := filepath.Join(os.TempDir(), "aura_cli_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(r.out, app.Bundle().Text(i18n.KeyAppName)+" (/help for commands)")
	if st := app.State(); st.Account != nil {
		fmt.Fprintln(r.out, st.Welcome)
	}

	for {
		input, err := line.Prompt(r.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal.
			fmt.Fprintln(r.out)
			return
		}
		if input != "" {
			line.AppendHistory(input)
		}
		if err := r.handle(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			r.printError(err.Error())
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
