package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"shop-bot/internal/domain/catalog"
	"shop-bot/internal/domain/coupon"
	"shop-bot/internal/repository"
)

type productJSON struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Description string          `json:"description"`
	FileURL     string          `json:"file_url"`
}

type couponJSON struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		couponsFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&couponsFile, "coupons-file", "", "optional path to coupons JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, databaseURL, productsFile, couponsFile); err != nil {
		slog.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, productsFile, couponsFile string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return err
	}
	if couponsFile != "" {
		if err := seedCoupons(ctx, repository.NewCouponRepository(pool), couponsFile); err != nil {
			return err
		}
	}
	return nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products file")
	}

	for _, p := range products {
		id, err := repo.Create(ctx, &catalog.Product{
			Name:        p.Name,
			Price:       p.Price,
			Stock:       p.Stock,
			Category:    p.Category,
			Subcategory: p.Subcategory,
			Description: p.Description,
			FileURL:     p.FileURL,
		})
		if err != nil {
			return errors.Wrapf(err, "seed product %q", p.Name)
		}
		slog.Info("seeded product", slog.Int64("id", id), slog.String("name", p.Name))
	}

	slog.Info("products seeded", slog.Int("count", len(products)))
	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read coupons file")
	}

	var coupons []couponJSON
	if err := json.Unmarshal(data, &coupons); err != nil {
		return errors.Wrap(err, "parse coupons file")
	}

	rules := make([]coupon.Rule, len(coupons))
	for i, c := range coupons {
		rules[i] = coupon.Rule{Code: c.Code, Discount: c.Discount, Active: true}
	}

	written, err := repo.UpsertBatch(ctx, rules)
	if err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	slog.Info("coupons seeded", slog.Int64("count", written))
	return nil
}
