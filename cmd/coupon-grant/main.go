// Command coupon-grant issues a coupon to repeat buyers: users whose id
// appears in at least two of the given gzipped buyer lists (one id per line).
package main

import (
	"bufio"
	"context"
	"flag"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oralcare-shop/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	maxFiles      = bits.UintSize
	progressEvery = 1_000_000
)

// granter is implemented by *postgres.CouponStore.
type granter interface {
	Grant(ctx context.Context, couponID int64, userIDs []int64) (int64, error)
}

type options struct {
	pattern   string
	couponID  int64
	minFiles  int
	capacity  uint
	batchSize int
	dryRun    bool
}

func main() {
	var (
		opts        options
		databaseURL string
	)
	flag.StringVar(&opts.pattern, "files", "data/buyers-*.gz", "glob of gzipped buyer id lists")
	flag.Int64Var(&opts.couponID, "coupon-id", 0, "coupon to grant")
	flag.IntVar(&opts.minFiles, "min-files", 2, "minimum number of lists a user must appear in")
	flag.UintVar(&opts.capacity, "capacity", 10_000_000, "expected ids per list (bloom filter sizing)")
	flag.IntVar(&opts.batchSize, "batch", 1000, "grants per statement")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "only report eligible users")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !opts.dryRun {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.couponID <= 0 {
		lg.Fatal("--coupon-id is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts, databaseURL); err != nil {
		lg.Fatal("Coupon grant failed", zap.Error(err))
	}
	lg.Info("Coupon grant completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options, databaseURL string) error {
	files, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "glob files")
	}
	switch {
	case len(files) < opts.minFiles:
		return errors.Errorf("need at least %d files, found %d", opts.minFiles, len(files))
	case len(files) > maxFiles:
		return errors.Errorf("at most %d files are supported, found %d", maxFiles, len(files))
	}
	slices.Sort(files)

	users, err := findRepeatBuyers(ctx, lg, files, opts.minFiles, opts.capacity)
	if err != nil {
		return err
	}
	lg.Info("Eligible users", zap.Int("count", len(users)))
	if len(users) == 0 || opts.dryRun {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return grant(ctx, lg, postgres.NewCouponStore(pool), opts.couponID, users, opts.batchSize)
}

// findRepeatBuyers returns the sorted ids that appear in at least minFiles
// files. Pass 1 builds one bloom filter per file; pass 2 re-reads every file
// and keeps ids that some other file's filter may contain. An id is only
// kept when its own-file bits are set by minFiles files, so filter false
// positives never produce a grant.
func findRepeatBuyers(ctx context.Context, lg *zap.Logger, files []string, minFiles int, capacity uint) ([]int64, error) {
	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters := make([]*bloom.BloomFilter, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			n, err := streamIDs(gCtx, path, func(raw string, _ int64) {
				filter.AddString(raw)
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			lg.Info("Pass 1 file done", zap.String("file", path), zap.Int64("ids", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lg.Info("Pass 2: finding candidates")
	candidates := make([]map[int64]uint, len(files))
	g, gCtx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[int64]uint)
			fileBit := uint(1) << uint(i)
			_, err := streamIDs(gCtx, path, func(raw string, id int64) {
				for j, f := range filters {
					if j != i && f.TestString(raw) {
						found[id] |= fileBit
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			lg.Info("Pass 2 file done", zap.String("file", path), zap.Int("candidates", len(found)))
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[int64]uint)
	for _, found := range candidates {
		for id, mask := range found {
			merged[id] |= mask
		}
	}
	var users []int64
	for id, mask := range merged {
		if bits.OnesCount(mask) >= minFiles {
			users = append(users, id)
		}
	}
	slices.Sort(users)
	return users, nil
}

// streamIDs calls fn for every valid positive user id in a gzipped file and
// returns how many it saw. Blank and malformed lines are skipped.
func streamIDs(ctx context.Context, path string, fn func(raw string, id int64)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var n int64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if n%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		raw := strings.TrimSpace(scanner.Text())
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		// Normalized form so "007" and "7" hit the same filter bits.
		fn(strconv.FormatInt(id, 10), id)
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", path)
	}
	return n, nil
}

// grant issues the coupon in batches. Re-running is safe: existing grants
// are skipped.
func grant(ctx context.Context, lg *zap.Logger, store granter, couponID int64, users []int64, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var created int64
	for start := 0; start < len(users); start += batchSize {
		end := min(start+batchSize, len(users))
		n, err := store.Grant(ctx, couponID, users[start:end])
		if err != nil {
			return errors.Wrapf(err, "grant batch at %d", start)
		}
		created += n
		lg.Info("Grant progress",
			zap.Int("processed", end),
			zap.Int("total", len(users)),
			zap.Int64("created", created),
		)
	}
	lg.Info("Grants created", zap.Int64("created", created), zap.Int("skipped", len(users)-int(created)))
	return nil
}
