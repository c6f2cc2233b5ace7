package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"metapro/internal/config"
	"metapro/internal/infra"
	"metapro/internal/infra/credentials"
	"metapro/internal/partial"
)

func main() {
	config.LoadEnv()

	var (
		keyFlag      string
		providerFlag string
		labelFlag    string
		disable      bool
		list         bool
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (fallbacks to environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderGemini, "Describe provider to configure (gemini or openai)")
	flag.StringVar(&labelFlag, "label", "", "Optional label stored with the key")
	flag.BoolVar(&disable, "disable", false, "Remove the key from future rotations")
	flag.BoolVar(&list, "list", false, "Print how many active keys the provider has")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	switch provider {
	case credentials.ProviderGemini, credentials.ProviderOpenAI:
	case "":
		provider = credentials.ProviderGemini
	default:
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Str("provider", provider).Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := partial.EnsureSchema(ctx, runner); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare schema: %v\n", err)
		os.Exit(1)
	}
	store := credentials.NewStore(runner)

	if list {
		tokens, err := store.Tokens(ctx, provider)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list %s keys: %v\n", provider, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %d active key(s)\n", strings.ToUpper(provider), len(tokens))
		return
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		switch provider {
		case credentials.ProviderOpenAI:
			key = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		default:
			key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		}
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or environment\n", strings.ToUpper(provider))
		os.Exit(1)
	}

	if disable {
		if err := store.DisableToken(ctx, provider, key); err != nil {
			fmt.Fprintf(os.Stderr, "failed to disable %s api key: %v\n", provider, err)
			os.Exit(1)
		}
		fmt.Printf("%s API key disabled\n", strings.ToUpper(provider))
		return
	}

	var props map[string]any
	if label := strings.TrimSpace(labelFlag); label != "" {
		props = map[string]any{"label": label}
	}
	if err := store.AddToken(ctx, provider, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
		os.Exit(1)
	}
	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}
