package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/gaurosa/storefront/internal/domain/promosync"
	"github.com/gaurosa/storefront/internal/storage/postgres"
	"github.com/gaurosa/storefront/internal/storage/rediscache"
)

func main() {
	var (
		databaseURL string
		redisURL    string
		timezone    string
		prune       bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis URL whose promotion cache is invalidated (or REDIS_URL env)")
	flag.StringVar(&timezone, "timezone", "Europe/Rome", "time zone of dates without an offset")
	flag.BoolVar(&prune, "prune", false, "delete promotions missing from every input file")
	flag.Usage = func() {
		_, _ = io.WriteString(flag.CommandLine.Output(),
			"Usage: promo-sync [flags] export.json [export.json.gz ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		slog.Error("invalid timezone", slog.String("timezone", timezone), slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, redisURL, loc, prune, flag.Args()); err != nil {
		slog.Error("promotion sync failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promotion sync completed successfully")
}

func run(ctx context.Context, databaseURL, redisURL string, loc *time.Location, prune bool, files []string) error {
	batch, err := readBatches(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read exports")
	}
	if prune {
		batch.Prune = true
		for _, rec := range batch.Promotions {
			batch.ActiveIDs = append(batch.ActiveIDs, rec.ID)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewPromotionRepository(pool)

	var cache promosync.Invalidator
	if redisURL != "" {
		rdb, err := rediscache.Connect(ctx, redisURL)
		if err != nil {
			slog.Warn("redis unavailable, cache expires on its own", slog.String("error", err.Error()))
		} else {
			defer func() { _ = rdb.Close() }()
			cache = rediscache.NewPromotions(repo, rdb, 0)
		}
	}

	rep, err := promosync.NewSyncer(repo, cache, loc).Sync(ctx, batch)
	if err != nil {
		return errors.Wrap(err, "sync")
	}

	for _, msg := range rep.Errors {
		slog.Warn("record skipped", slog.String("reason", msg))
	}
	slog.Info(rep.Message(),
		slog.Int("synced", rep.Synced),
		slog.Int64("deleted", rep.Deleted),
		slog.Int("errors", len(rep.Errors)),
	)
	return nil
}

// readBatches decodes every file concurrently and concatenates the records
// in argument order.
func readBatches(ctx context.Context, files []string) (promosync.Batch, error) {
	batches := make([]promosync.Batch, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			data, err := readExport(ctx, f)
			if err != nil {
				return errors.Wrapf(err, "read %s", f)
			}
			b, err := promosync.Decode(data)
			if err != nil {
				return errors.Wrapf(err, "decode %s", f)
			}
			slog.Info("export decoded", slog.String("file", filepath.Base(f)), slog.Int("promotions", len(b.Promotions)))
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return promosync.Batch{}, err
	}

	var out promosync.Batch
	for _, b := range batches {
		out.Promotions = append(out.Promotions, b.Promotions...)
	}
	return out, nil
}

// readExport reads a JSON export, transparently decompressing .gz files.
func readExport(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
