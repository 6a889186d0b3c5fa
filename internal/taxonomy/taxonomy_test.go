package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unit string
		want UnitCategory
	}{
		{"", CategoryNone},
		{"  ", CategoryNone},
		{"USD", CategoryCurrency},
		{"$", CategoryCurrency},
		{"EUR", CategoryCurrency},
		{"£", CategoryCurrency},
		{"%", CategoryPercent},
		{"percent", CategoryPercent},
		{"pp", CategoryPercent},
		{"hours", CategoryDuration},
		{"years", CategoryDuration},
		{"x", CategoryRatio},
		{"times", CategoryRatio},
		{"jobs", CategoryCount},
		{"workers", CategoryCount},
	}

	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CategoryOf(tt.unit))
		})
	}
}

func TestAllows(t *testing.T) {
	t.Parallel()

	assert.False(t, Allows(TypeEmployment, CategoryCurrency))
	assert.True(t, Allows(TypeEmployment, CategoryCount))
	assert.True(t, Allows(TypeEmployment, CategoryNone), "unitless records are never inconsistent")
	assert.True(t, Allows(TypeUnknown, CategoryCurrency))
	assert.True(t, Allows("something_custom", CategoryPercent))
	assert.False(t, Allows(TypeInvestment, CategoryPercent))
}

func TestInfer(t *testing.T) {
	t.Parallel()

	t.Run("currency restricts to monetary types", func(t *testing.T) {
		t.Parallel()
		got := Infer("Companies will invest heavily in AI, creating many jobs", "USD")
		assert.Equal(t, TypeInvestment, got)
	})

	t.Run("count unit prefers employment", func(t *testing.T) {
		t.Parallel()
		got := Infer("AI could displace workers and reshape jobs", "jobs")
		assert.Equal(t, TypeEmployment, got)
	})

	t.Run("case insensitive", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, TypeRevenue, Infer("Global REVENUE from AI software", "USD"))
	})

	t.Run("no keyword", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, TypeUnknown, Infer("The quick brown fox", "USD"))
	})

	t.Run("tie resolves in fixed order", func(t *testing.T) {
		t.Parallel()
		// one investment keyword, one revenue keyword
		assert.Equal(t, TypeInvestment, Infer("funding and sales", "USD"))
	})
}

func TestIsKnown(t *testing.T) {
	t.Parallel()
	assert.True(t, IsKnown(TypeAdoption))
	assert.False(t, IsKnown(TypeUnknown))
	assert.False(t, IsKnown(""))
	assert.Equal(t, 9, KnownTypes())
}
