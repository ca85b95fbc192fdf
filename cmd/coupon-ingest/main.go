// Command coupon-ingest loads bulk coupon dumps into the database.
//
// Each input file is a gzip-compressed text file with one "CODE,DISCOUNT"
// line per coupon. Dumps exported from marketing tools repeat codes freely,
// so a bloom filter screens out duplicates before they reach the database.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"shop-bot/internal/domain/coupon"
	"shop-bot/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 100_000
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("usage: coupon-ingest [flags] dump.gz [dump2.gz ...]")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, databaseURL, flag.Args()); err != nil {
		slog.Error("ingest failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, files []string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	repo := repository.NewCouponRepository(pool)

	// One filter across all files so cross-file duplicates collapse too.
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	var total int64
	for _, path := range files {
		n, err := ingestFile(ctx, repo, seen, path)
		if err != nil {
			return errors.Wrapf(err, "ingest %s", path)
		}
		slog.Info("file ingested", slog.String("path", path), slog.Int64("coupons", n))
		total += n
	}

	slog.Info("ingest complete", slog.Int64("coupons", total))
	return nil
}

func ingestFile(ctx context.Context, repo *repository.CouponRepository, seen *bloom.BloomFilter, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open file")
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "open gzip stream")
	}
	defer gz.Close()

	var (
		total   int64
		lineNo  int64
		batch   = make([]coupon.Rule, 0, batchSize)
		scanner = bufio.NewScanner(gz)
	)
	for scanner.Scan() {
		lineNo++
		if lineNo%progressEvery == 0 {
			slog.Info("progress", slog.String("path", path), slog.Int64("lines", lineNo))
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		rule, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		// TestOrAddString reports true for repeats, with a small false
		// positive rate. Dropping a false positive loses one coupon out of
		// a bulk dump, which is acceptable here.
		if seen.TestOrAddString(rule.Code) {
			continue
		}

		batch = append(batch, rule)
		if len(batch) == batchSize {
			n, err := repo.UpsertBatch(ctx, batch)
			if err != nil {
				return total, err
			}
			total += n
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return total, errors.Wrap(err, "read stream")
	}

	if len(batch) > 0 {
		n, err := repo.UpsertBatch(ctx, batch)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// parseLine parses one "CODE,DISCOUNT" line. Malformed lines are skipped.
func parseLine(line string) (coupon.Rule, bool) {
	code, pct, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return coupon.Rule{}, false
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return coupon.Rule{}, false
	}

	discount, err := decimal.NewFromString(strings.TrimSpace(pct))
	if err != nil || discount.LessThanOrEqual(decimal.Zero) || discount.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Rule{}, false
	}

	return coupon.Rule{Code: code, Discount: discount, Active: true}, true
}
