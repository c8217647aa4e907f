package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"mailpipe/internal/app"
	"mailpipe/internal/config"
)

func main() {
	accountsFlag := flag.String("accounts", "", "Comma separated account ids to backfill (default: all)")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}

	sessions, err := a.Sessions(splitList(*accountsFlag), logger)
	if err != nil {
		_ = a.Close()
		logger.Fatal().Err(err).Msg("Failed to select accounts")
	}

	fmt.Printf("[BACKFILL] Backfilling %d accounts\n", len(sessions))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		total  int
		failed int
	)
	for _, s := range sessions {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := a.Coordinator.BackfillAccount(ctx, s)

			mu.Lock()
			defer mu.Unlock()
			total += n
			if err != nil {
				failed++
				logger.Error().Err(err).Str("account", s.AccountID()).Int("indexed", n).Msg("Backfill failed")
				return
			}
			logger.Info().Str("account", s.AccountID()).Int("indexed", n).Msg("Backfill finished")
		}()
	}
	wg.Wait()
	_ = a.Close()

	fmt.Printf("[BACKFILL] ✅ Indexed %d emails (%d accounts failed)\n", total, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
