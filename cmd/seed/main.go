package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/config"
	"fintrack/internal/db"
	apperrors "fintrack/internal/errors"
	"fintrack/internal/model"
	"fintrack/internal/obs"
	"fintrack/internal/repository"
	"fintrack/internal/service"
)

// SeedTransactionData represents one entry of the seed file. Amount may be a
// JSON number or a numeric string.
type SeedTransactionData struct {
	Amount      any         `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
}

func main() {
	source := flag.String("source", "", "URL or file path of a JSON array of transactions")
	username := flag.String("user", "", "Owner of the seeded transactions")
	flag.Parse()

	if *source == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "Usage: seed -user <username> -source <url|file>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*source, *username); err != nil {
		slog.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(source, username string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger("fintrack-seed", cfg.LogLevel)

	gormDB, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(gormDB, false, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ctx := context.Background()
	user, err := repository.NewUserRepository(gormDB).FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find user %s: %w", username, err)
	}

	logger.Info("loading transactions", slog.String("source", source))
	items, err := load(source)
	if err != nil {
		return err
	}
	logger.Info("loaded transactions", slog.Int("count", len(items)))

	svc := service.NewTransactionService(repository.NewTransactionRepository(gormDB), nil, logger)
	created, skipped, err := seedTransactions(ctx, svc, user.ID, items, logger)
	if err != nil {
		return err
	}

	logger.Info("seed completed",
		slog.String("user", username),
		slog.Int("created", created),
		slog.Int("skipped", skipped),
	)
	return nil
}

// load reads the seed array from an http(s) URL or a local file.
func load(source string) ([]SeedTransactionData, error) {
	var r io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Get(source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch from API: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("API returned status code: %d", resp.StatusCode)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", source, err)
		}
		r = f
	}
	defer r.Close()

	return decode(r)
}

func decode(r io.Reader) ([]SeedTransactionData, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var items []SeedTransactionData
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return items, nil
}

// seedTransactions creates every valid item for userID and skips the rest.
func seedTransactions(ctx context.Context, svc service.TransactionService, userID uuid.UUID, items []SeedTransactionData, logger *slog.Logger) (created, skipped int, err error) {
	for i, item := range items {
		input, perr := toInput(item)
		if perr != nil {
			logger.Warn("skipping invalid entry", slog.Int("index", i), slog.Any("error", perr))
			skipped++
			continue
		}
		if _, err := svc.Create(ctx, userID, input); err != nil {
			if apperrors.MapErrorToHTTP(err).StatusCode != http.StatusBadRequest {
				return created, skipped, fmt.Errorf("error creating entry %d: %w", i, err)
			}
			logger.Warn("skipping rejected entry", slog.Int("index", i), slog.Any("error", err))
			skipped++
			continue
		}
		created++
	}
	return created, skipped, nil
}

func toInput(item SeedTransactionData) (service.TransactionInput, error) {
	raw := fmt.Sprint(item.Amount)
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return service.TransactionInput{}, fmt.Errorf("invalid amount %q", raw)
	}

	input := service.TransactionInput{
		Amount:   amount,
		Category: model.Category(strings.ToLower(strings.TrimSpace(item.Category))),
	}
	if item.Description != "" {
		desc := item.Description
		input.Description = &desc
	}
	if item.Date != "" {
		date, err := parseDate(item.Date)
		if err != nil {
			return service.TransactionInput{}, err
		}
		input.Date = &date
	}
	return input, nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}
