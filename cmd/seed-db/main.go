package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"
	_ "time/tzdata"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/gaurosa/storefront/internal/domain/auth"
	"github.com/gaurosa/storefront/internal/domain/catalog"
	"github.com/gaurosa/storefront/internal/domain/promosync"
	"github.com/gaurosa/storefront/internal/storage/postgres"
)

type productJSON struct {
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	Price          decimal.Decimal  `json:"price"`
	CompareAtPrice *decimal.Decimal `json:"compare_at_price"`
	MainCategory   string           `json:"main_category"`
	Subcategory    string           `json:"subcategory"`
	Tags           []string         `json:"tags"`
}

type seedConfig struct {
	databaseURL    string
	productsFile   string
	promotionsFile string
	apiKey         string
	apiKeyPepper   string
	timezone       string
}

func main() {
	var cfg seedConfig

	flag.StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&cfg.promotionsFile, "promotions-file", "db/seed/promotions.json", "path to promotions export file")
	flag.StringVar(&cfg.apiKey, "api-key", "", "sync API key to seed (or GAUROSA_SEED_API_KEY env)")
	flag.StringVar(&cfg.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or GAUROSA_API_KEY_PEPPER env)")
	flag.StringVar(&cfg.timezone, "timezone", "Europe/Rome", "time zone of promotion dates without an offset")
	flag.Parse()

	if cfg.databaseURL == "" {
		cfg.databaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("GAUROSA_SEED_API_KEY")
	}
	if cfg.apiKey == "" {
		slog.Error("API key is required: set --api-key or GAUROSA_SEED_API_KEY")
		os.Exit(1)
	}
	if cfg.apiKeyPepper == "" {
		cfg.apiKeyPepper = os.Getenv("GAUROSA_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, cfg seedConfig) error {
	loc, err := time.LoadLocation(cfg.timezone)
	if err != nil {
		return errors.Wrap(err, "load timezone")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, cfg.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), cfg.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromotions(ctx, postgres.NewPromotionRepository(pool), cfg.promotionsFile, loc); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), cfg.apiKey, cfg.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, catalog.Product{
			Code:           p.Code,
			Name:           p.Name,
			Price:          p.Price,
			CompareAtPrice: p.CompareAtPrice,
			MainCategory:   p.MainCategory,
			Subcategory:    p.Subcategory,
			Tags:           p.Tags,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Code)
		}

		slog.Info("upserted product", slog.String("code", p.Code), slog.String("name", p.Name))
	}

	return nil
}

func seedPromotions(ctx context.Context, repo *postgres.PromotionRepository, promotionsFile string, loc *time.Location) error {
	slog.Info("reading promotions file", slog.String("path", promotionsFile))

	data, err := os.ReadFile(promotionsFile)
	if err != nil {
		return errors.Wrap(err, "read promotions file")
	}

	batch, err := promosync.Decode(data)
	if err != nil {
		return errors.Wrap(err, "parse promotions JSON")
	}

	rep, err := promosync.NewSyncer(repo, nil, loc).Sync(ctx, batch)
	if err != nil {
		return err
	}
	if len(rep.Errors) > 0 {
		return errors.Errorf("%d promotions rejected: %v", len(rep.Errors), rep.Errors)
	}

	slog.Info("upserted promotions", slog.Int("count", rep.Synced))

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding sync API key")

	info := auth.APIKeyInfo{
		ID:      "mazgest",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Gestionale sync",
		Scopes:  []string{auth.ScopeSyncPromotions},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert sync API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
