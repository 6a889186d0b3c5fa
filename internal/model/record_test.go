package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupKey(t *testing.T) {
	t.Parallel()

	t.Run("value unit and year", func(t *testing.T) {
		t.Parallel()
		r := MetricRecord{Value: 4.5, Unit: "USD bn", Year: IntPtr(2023)}
		assert.Equal(t, "4.5|USD bn|2023", r.GroupKey())
	})

	t.Run("missing year", func(t *testing.T) {
		t.Parallel()
		r := MetricRecord{Value: 19, Unit: ""}
		assert.Equal(t, "19||null", r.GroupKey())
	})

	t.Run("integral floats have no decimals", func(t *testing.T) {
		t.Parallel()
		a := MetricRecord{Value: 1200000, Unit: "USD"}
		b := MetricRecord{Value: 1.2e6, Unit: "USD"}
		assert.Equal(t, a.GroupKey(), b.GroupKey())
		assert.Equal(t, "1200000|USD|null", a.GroupKey())
	})

	t.Run("negative zero groups with zero", func(t *testing.T) {
		t.Parallel()
		a := MetricRecord{Value: math.Copysign(0, -1), Unit: "%", Year: IntPtr(2022)}
		b := MetricRecord{Value: 0, Unit: "%", Year: IntPtr(2022)}
		assert.Equal(t, b.GroupKey(), a.GroupKey())
		assert.Equal(t, "0", FormatValue(math.Copysign(0, -1)))
	})

	t.Run("unit is compared exactly", func(t *testing.T) {
		t.Parallel()
		a := MetricRecord{Value: 10, Unit: "%"}
		b := MetricRecord{Value: 10, Unit: "percent"}
		assert.NotEqual(t, a.GroupKey(), b.GroupKey())
	})
}

func TestYearValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, MetricRecord{}.YearValue())
	assert.False(t, MetricRecord{}.HasYear())
	r := MetricRecord{Year: IntPtr(2021)}
	assert.True(t, r.HasYear())
	assert.Equal(t, 2021, r.YearValue())
}

func TestDecisionApply(t *testing.T) {
	t.Parallel()

	rec := MetricRecord{OriginalID: "a-1", Value: 3, Unit: "USD", MetricType: "employment"}
	d := Decision{
		Action:  ActionModify,
		Changes: map[string]string{ChangeMetricType: "investment", ChangeReview: "unit"},
	}

	out := d.Apply(rec)
	assert.Equal(t, "investment", out.MetricType)
	assert.Equal(t, "USD", out.Unit)
	assert.Equal(t, "employment", rec.MetricType, "input must not be mutated")
}

func TestActionRetained(t *testing.T) {
	t.Parallel()
	assert.True(t, ActionKeep.Retained())
	assert.True(t, ActionModify.Retained())
	assert.False(t, ActionRemove.Retained())
}

func TestSummaryPercent(t *testing.T) {
	t.Parallel()
	assert.Zero(t, Summary{}.Percent(3))
	s := Summary{Total: 8}
	assert.InDelta(t, 25.0, s.Percent(2), 0.0001)
}
