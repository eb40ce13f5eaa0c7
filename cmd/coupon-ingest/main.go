package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/storage/postgres"
)

const writeConcurrency = 8

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz coupon files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list coupon files")
	}
	if len(files) == 0 {
		return errors.Errorf("no .gz files in %s", dataDir)
	}

	slog.Info("reading coupon files", slog.Int("files", len(files)))

	batches, err := readFiles(ctx, files)
	if err != nil {
		return err
	}

	unique, dups := dedupe(batches)
	slog.Info("deduplicated coupon codes",
		slog.Int("unique", len(unique)),
		slog.Int("duplicates", dups),
	)
	if len(unique) == 0 {
		slog.Info("no coupons to insert")
		return nil
	}

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, postgres.NewStore(pool).Coupons(), unique)
}

// readFiles parses every file concurrently, keeping file order in the result.
func readFiles(ctx context.Context, files []string) ([][]record, error) {
	batches := make([][]record, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			recs, err := readFile(ctx, path)
			if err != nil {
				return err
			}
			slog.Info("file parsed", slog.String("file", filepath.Base(path)), slog.Int("codes", len(recs)))
			batches[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

type couponCreator interface {
	Create(ctx context.Context, c *coupon.Coupon) error
}

// writeCoupons creates coupons concurrently. Codes already present in the
// store are skipped.
func writeCoupons(ctx context.Context, repo couponCreator, recs []record) error {
	slog.Info("writing coupons to database", slog.Int("count", len(recs)))

	var written, skipped atomic.Int64
	now := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeConcurrency)
	for _, rec := range recs {
		g.Go(func() error {
			c := rec.coupon()
			c.ID = uuid.New().String()
			c.CreatedAt = now
			if err := repo.Create(ctx, &c); err != nil {
				if errors.Is(err, coupon.ErrDuplicateCode) {
					skipped.Add(1)
					return nil
				}
				return errors.Wrapf(err, "create coupon %s", c.Code)
			}
			if n := written.Add(1); n%1000 == 0 {
				slog.Info("write progress", slog.Int64("written", n), slog.Int("total", len(recs)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("coupons written",
		slog.Int64("written", written.Load()),
		slog.Int64("already_present", skipped.Load()),
	)
	return nil
}
