package coupon

import (
	"context"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator resolves a coupon code to its discount rule.
type Validator interface {
	Validate(ctx context.Context, code string) (*Rule, error)
}

const (
	filterCapacity = 1_000_000
	filterFPR      = 0.001
)

// RepoValidator implements Validator with a bloom pre-filter in front of the
// Repository. Codes the filter has never seen are rejected without a
// database round trip; filter hits are confirmed against the Repository,
// which stays the authority.
type RepoValidator struct {
	repo Repository

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{
		repo:   repo,
		filter: bloom.NewWithEstimates(filterCapacity, filterFPR),
	}
}

// Warm seeds the pre-filter with every known code. Call once at startup;
// codes added later are fed in via Observe.
func (v *RepoValidator) Warm(ctx context.Context) error {
	codes, err := v.repo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, code := range codes {
		v.filter.AddString(normalize(code))
	}

	return nil
}

// Observe records a newly created code in the pre-filter.
func (v *RepoValidator) Observe(code string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter.AddString(normalize(code))
}

// Validate checks the code against the pre-filter and then the Repository.
// Inactive codes validate the same as unknown ones.
func (v *RepoValidator) Validate(ctx context.Context, code string) (*Rule, error) {
	code = normalize(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	v.mu.RLock()
	seen := v.filter.TestString(code)
	v.mu.RUnlock()
	if !seen {
		return nil, ErrInvalidCoupon
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}

		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !rule.Active || rule.Discount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidCoupon
	}

	return rule, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var _ Validator = (*RepoValidator)(nil)
