package cleaner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

func days(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
	}
	return out
}

func numericDataset(t *testing.T, values []float64, valid []bool) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(
		dataset.NewTimeColumn("date", days(len(values))),
		dataset.NewNumericColumn("value", dataset.RoleFeature, values, valid),
	)
	require.NoError(t, err)
	return ds
}

func cleanerFor(strategy map[string]config.StrategySpec, outliers config.OutlierConfig) *Cleaner {
	return New(&config.Config{
		TimestampColumn:      "date",
		MissingValueStrategy: strategy,
		Outliers:             outliers,
	}, nil)
}

func TestClean_LinearInterpolateMidpoint(t *testing.T) {
	// Ten rows, one gap; the imputed value must be the linear midpoint of
	// its neighbors.
	values := []float64{10, 12, 14, 16, 0, 20, 22, 24, 26, 28}
	valid := []bool{true, true, true, true, false, true, true, true, true, true}

	c := cleanerFor(map[string]config.StrategySpec{
		"value": {Strategy: config.StrategyLinearInterpolate},
	}, config.OutlierConfig{})

	out, summary, err := c.Clean(context.Background(), numericDataset(t, values, valid))
	require.NoError(t, err)

	col, _ := out.Column("value")
	assert.Zero(t, col.NullCount())
	assert.Equal(t, 18.0, col.Floats[4]) // midpoint of 16 and 20
	assert.Equal(t, 1, summary.ImputedCounts["value"])
}

func TestClean_LinearInterpolateWideGap(t *testing.T) {
	values := []float64{0, 0, 0, 30}
	valid := []bool{true, false, false, true}

	c := cleanerFor(map[string]config.StrategySpec{
		"value": {Strategy: config.StrategyLinearInterpolate},
	}, config.OutlierConfig{})

	out, _, err := c.Clean(context.Background(), numericDataset(t, values, valid))
	require.NoError(t, err)

	col, _ := out.Column("value")
	assert.Equal(t, []float64{0, 10, 20, 30}, col.Floats)
}

func TestClean_ForwardAndBackwardFill(t *testing.T) {
	t.Run("forward fill leaves leading nulls", func(t *testing.T) {
		values := []float64{0, 5, 0, 0, 8}
		valid := []bool{false, true, false, false, true}

		c := cleanerFor(map[string]config.StrategySpec{
			"value": {Strategy: config.StrategyForwardFill},
		}, config.OutlierConfig{})

		out, _, err := c.Clean(context.Background(), numericDataset(t, values, valid))
		require.NoError(t, err)

		col, _ := out.Column("value")
		assert.True(t, col.IsNull(0))
		assert.Equal(t, 5.0, col.Floats[2])
		assert.Equal(t, 5.0, col.Floats[3])
	})

	t.Run("backward fill leaves trailing nulls", func(t *testing.T) {
		values := []float64{0, 5, 0, 8, 0}
		valid := []bool{false, true, false, true, false}

		c := cleanerFor(map[string]config.StrategySpec{
			"value": {Strategy: config.StrategyBackwardFill},
		}, config.OutlierConfig{})

		out, _, err := c.Clean(context.Background(), numericDataset(t, values, valid))
		require.NoError(t, err)

		col, _ := out.Column("value")
		assert.Equal(t, 5.0, col.Floats[0])
		assert.Equal(t, 8.0, col.Floats[2])
		assert.True(t, col.IsNull(4))
	})
}

func TestClean_StatisticStrategies(t *testing.T) {
	values := []float64{2, 4, 0, 4, 10}
	valid := []bool{true, true, false, true, true}

	tests := []struct {
		strategy config.MissingStrategy
		want     float64
	}{
		{config.StrategyMean, 5.0},
		{config.StrategyMedian, 4.0},
		{config.StrategyMode, 4.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			c := cleanerFor(map[string]config.StrategySpec{
				"value": {Strategy: tt.strategy},
			}, config.OutlierConfig{})

			out, _, err := c.Clean(context.Background(), numericDataset(t, values, valid))
			require.NoError(t, err)

			col, _ := out.Column("value")
			assert.Equal(t, tt.want, col.Floats[2])
		})
	}
}

func TestClean_ConstantStrategy(t *testing.T) {
	fill := -1.0
	c := cleanerFor(map[string]config.StrategySpec{
		"value": {Strategy: config.StrategyConstant, FillValue: &fill},
	}, config.OutlierConfig{})

	out, _, err := c.Clean(context.Background(),
		numericDataset(t, []float64{1, 0, 3}, []bool{true, false, true}))
	require.NoError(t, err)

	col, _ := out.Column("value")
	assert.Equal(t, -1.0, col.Floats[1])
}

func TestClean_DropRowRunsAfterOtherRepairs(t *testing.T) {
	ds, err := dataset.New(
		dataset.NewTimeColumn("date", days(4)),
		dataset.NewNumericColumn("a", dataset.RoleFeature,
			[]float64{1, 0, 3, 4}, []bool{true, false, true, true}),
		dataset.NewNumericColumn("b", dataset.RoleFeature,
			[]float64{10, 20, 0, 40}, []bool{true, true, false, true}),
	)
	require.NoError(t, err)

	c := cleanerFor(map[string]config.StrategySpec{
		"a": {Strategy: config.StrategyMean},
		"b": {Strategy: config.StrategyDropRow},
	}, config.OutlierConfig{})

	out, summary, err := c.Clean(context.Background(), ds)
	require.NoError(t, err)

	// Row 2 is dropped for b's null; row 1 survives because a was repaired
	// first.
	assert.Equal(t, 3, out.Rows())
	assert.Equal(t, 1, summary.RowsDropped)
	a, _ := out.Column("a")
	assert.Zero(t, a.NullCount())
}

func TestClean_SortsAndDeduplicatesTimestamps(t *testing.T) {
	ts := []time.Time{
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	ds, err := dataset.New(
		dataset.NewTimeColumn("date", ts),
		dataset.NewNumericColumn("value", dataset.RoleFeature, []float64{3, 1, 99, 2}, nil),
	)
	require.NoError(t, err)

	c := cleanerFor(nil, config.OutlierConfig{})
	out, summary, err := c.Clean(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Rows())
	assert.Equal(t, 1, summary.DuplicatesDropped)

	col, _ := out.Column("value")
	// Sorted ascending, first occurrence of the duplicate kept.
	assert.Equal(t, []float64{1, 2, 3}, col.Floats)
}

func TestClean_AllNullColumnIsFatal(t *testing.T) {
	c := cleanerFor(map[string]config.StrategySpec{
		"value": {Strategy: config.StrategyMean},
	}, config.OutlierConfig{})

	_, _, err := c.Clean(context.Background(),
		numericDataset(t, []float64{0, 0, 0}, []bool{false, false, false}))

	require.Error(t, err)
	assert.Equal(t, pipeerrors.KindInsufficientData, pipeerrors.KindOf(err))
}

func TestClean_OutlierCapBoundsProperty(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 100}
	ds := numericDataset(t, values, nil)

	c := cleanerFor(nil, config.OutlierConfig{
		DetectionMethod:  "iqr",
		Threshold:        1.5,
		HandlingStrategy: config.OutlierCap,
		ApplyToColumns:   []string{"value"},
	})

	out, summary, err := c.Clean(context.Background(), ds)
	require.NoError(t, err)

	bounds, ok := summary.OutlierBounds["value"]
	require.True(t, ok)

	col, _ := out.Column("value")
	for i, v := range col.Floats {
		assert.GreaterOrEqual(t, v, bounds.Lower, "row %d", i)
		assert.LessOrEqual(t, v, bounds.Upper, "row %d", i)
	}
	assert.Equal(t, 1, summary.OutliersHandled["value"])
	assert.Equal(t, bounds.Upper, col.Floats[9])
}

func TestClean_OutlierRemove(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 100}
	ds := numericDataset(t, values, nil)

	c := cleanerFor(nil, config.OutlierConfig{
		DetectionMethod:  "iqr",
		Threshold:        1.5,
		HandlingStrategy: config.OutlierRemove,
		ApplyToColumns:   []string{"value"},
	})

	out, summary, err := c.Clean(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 9, out.Rows())
	assert.Equal(t, 1, summary.RowsDropped)
}

func TestClean_OutlierFlag(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 100}
	ds := numericDataset(t, values, nil)

	c := cleanerFor(nil, config.OutlierConfig{
		DetectionMethod:  "iqr",
		Threshold:        1.5,
		HandlingStrategy: config.OutlierFlag,
		ApplyToColumns:   []string{"value"},
	})

	out, _, err := c.Clean(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 10, out.Rows())
	flags, ok := out.Column("value_is_outlier")
	require.True(t, ok)
	assert.Equal(t, 1.0, flags.Floats[9])
	assert.Equal(t, 0.0, flags.Floats[0])

	// Original values are retained under the flag policy.
	col, _ := out.Column("value")
	assert.Equal(t, 100.0, col.Floats[9])
}

func TestClean_OutlierInterpolate(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 15, 16, 100, 18, 19}
	ds := numericDataset(t, values, nil)

	c := cleanerFor(map[string]config.StrategySpec{
		"value": {Strategy: config.StrategyLinearInterpolate},
	}, config.OutlierConfig{
		DetectionMethod:  "iqr",
		Threshold:        1.5,
		HandlingStrategy: config.OutlierInterpolate,
		ApplyToColumns:   []string{"value"},
	})

	out, _, err := c.Clean(context.Background(), ds)
	require.NoError(t, err)

	col, _ := out.Column("value")
	assert.Equal(t, 17.0, col.Floats[7]) // midpoint of 16 and 18
}

func TestClean_TooFewValuesForQuartiles(t *testing.T) {
	ds := numericDataset(t, []float64{1, 2, 3}, nil)

	c := cleanerFor(nil, config.OutlierConfig{
		DetectionMethod:  "iqr",
		Threshold:        1.5,
		HandlingStrategy: config.OutlierCap,
		ApplyToColumns:   []string{"value"},
	})

	_, _, err := c.Clean(context.Background(), ds)
	require.Error(t, err)
	assert.Equal(t, pipeerrors.KindInsufficientData, pipeerrors.KindOf(err))
}

func TestClean_DoesNotMutateInput(t *testing.T) {
	values := []float64{1, 0, 3}
	valid := []bool{true, false, true}
	ds := numericDataset(t, values, valid)

	c := cleanerFor(map[string]config.StrategySpec{
		"value": {Strategy: config.StrategyMean},
	}, config.OutlierConfig{})

	_, _, err := c.Clean(context.Background(), ds)
	require.NoError(t, err)

	col, _ := ds.Column("value")
	assert.True(t, col.IsNull(1))
}
