package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/webstore/internal/seed"
	"github.com/xenking/webstore/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		seedFile     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/seed.json", "path to the JSON fixtures file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or WEBSTORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("WEBSTORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile, pepper string) error {
	slog.Info("reading seed file", slog.String("path", seedFile))

	f, err := os.Open(seedFile)
	if err != nil {
		return errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	data, err := seed.Parse(f)
	if err != nil {
		return err
	}

	slog.Info("running migrations")

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	var st seed.Stats
	if err := store.InTx(ctx, func(ctx context.Context) error {
		st, err = seed.Apply(ctx, seed.Target{
			Catalog: store.Catalog(),
			Coupons: store.Coupons(),
			Users:   store.Users(),
		}, data, []byte(pepper))
		return err
	}); err != nil {
		return errors.Wrap(err, "apply seed")
	}

	slog.Info("seeded",
		slog.Int("products", st.Products),
		slog.Int("packages", st.Packages),
		slog.Int("coupons", st.Coupons),
		slog.Int("skipped_coupons", st.SkippedCoupons),
		slog.Int("users", st.Users),
	)
	return nil
}
