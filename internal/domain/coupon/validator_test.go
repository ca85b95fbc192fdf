package coupon

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	rules   map[string]*Rule
	codes   []string
	lookups int
	err     error
}

func (m *mockRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	rule, ok := m.rules[code]
	if !ok {
		return nil, ErrInvalidCoupon
	}
	return rule, nil
}

func (m *mockRepo) Upsert(_ context.Context, _ *Rule) error               { return nil }
func (m *mockRepo) UpsertBatch(_ context.Context, _ []Rule) (int64, error) { return 0, nil }
func (m *mockRepo) SetActive(_ context.Context, _ string, _ bool) error   { return nil }
func (m *mockRepo) Delete(_ context.Context, _ string) error              { return nil }
func (m *mockRepo) ListCodes(_ context.Context) ([]string, error)         { return m.codes, nil }

// --- Tests ---

func TestRuleApply(t *testing.T) {
	tests := []struct {
		name     string
		discount string
		subtotal string
		want     string
	}{
		{"ten percent", "10", "42.97", "38.67"},
		{"half off", "50", "20.00", "10.00"},
		{"everything free", "100", "15.50", "0.00"},
		{"rounds to cents", "15", "9.99", "8.49"},
		{"zero subtotal", "25", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &Rule{Code: "X", Discount: decimal.RequireFromString(tt.discount), Active: true}
			got := rule.Apply(decimal.RequireFromString(tt.subtotal))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestValidate_UnknownCodeSkipsLookup(t *testing.T) {
	repo := &mockRepo{codes: []string{"SAVE10"}}
	v := NewRepoValidator(repo)
	require.NoError(t, v.Warm(context.Background()))

	_, err := v.Validate(context.Background(), "NEVERSEEN")
	require.ErrorIs(t, err, ErrInvalidCoupon)
	assert.Zero(t, repo.lookups, "filter miss must not hit the repository")
}

func TestValidate_KnownCode(t *testing.T) {
	repo := &mockRepo{
		codes: []string{"SAVE10"},
		rules: map[string]*Rule{
			"SAVE10": {Code: "SAVE10", Discount: decimal.NewFromInt(10), Active: true},
		},
	}
	v := NewRepoValidator(repo)
	require.NoError(t, v.Warm(context.Background()))

	rule, err := v.Validate(context.Background(), "  save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", rule.Code)
	assert.Equal(t, 1, repo.lookups)
}

func TestValidate_InactiveCode(t *testing.T) {
	repo := &mockRepo{
		codes: []string{"OLD"},
		rules: map[string]*Rule{
			"OLD": {Code: "OLD", Discount: decimal.NewFromInt(10), Active: false},
		},
	}
	v := NewRepoValidator(repo)
	require.NoError(t, v.Warm(context.Background()))

	_, err := v.Validate(context.Background(), "OLD")
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestValidate_EmptyCode(t *testing.T) {
	v := NewRepoValidator(&mockRepo{})

	_, err := v.Validate(context.Background(), "   ")
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestValidate_ObservedCode(t *testing.T) {
	repo := &mockRepo{
		rules: map[string]*Rule{
			"FRESH": {Code: "FRESH", Discount: decimal.NewFromInt(20), Active: true},
		},
	}
	v := NewRepoValidator(repo)
	require.NoError(t, v.Warm(context.Background()))

	// Unknown until observed.
	_, err := v.Validate(context.Background(), "FRESH")
	require.ErrorIs(t, err, ErrInvalidCoupon)

	v.Observe("FRESH")
	rule, err := v.Validate(context.Background(), "FRESH")
	require.NoError(t, err)
	assert.Equal(t, "FRESH", rule.Code)
}

func TestValidate_RepoError(t *testing.T) {
	repo := &mockRepo{codes: []string{"SAVE10"}, err: errors.New("db down")}
	v := NewRepoValidator(repo)
	require.NoError(t, v.Warm(context.Background()))

	_, err := v.Validate(context.Background(), "SAVE10")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCoupon)
}
