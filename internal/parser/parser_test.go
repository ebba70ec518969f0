package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videolytics/query-service/internal/errors"
	"github.com/videolytics/query-service/internal/intent"
)

// TestParseMetricClassification tests metric recognition on questions the
// original bot was trained on
func TestParseMetricClassification(t *testing.T) {
	tests := []struct {
		name       string
		question   string
		wantMetric intent.Metric
	}{
		{
			name:       "total video count",
			question:   "Сколько всего видео есть в системе?",
			wantMetric: intent.MetricVideoCount,
		},
		{
			name:       "views growth on a day",
			question:   "На сколько просмотров выросли все видео 2025-11-28?",
			wantMetric: intent.MetricDeltaViews,
		},
		{
			name:       "likes growth",
			question:   "Какой прирост лайков был 28 ноября 2025?",
			wantMetric: intent.MetricDeltaLikes,
		},
		{
			name:       "sum of views",
			question:   "Сумма просмотров всех видео",
			wantMetric: intent.MetricTotalViews,
		},
		{
			name:       "sum of likes",
			question:   "Сумма лайков всех видео",
			wantMetric: intent.MetricTotalLikes,
		},
		{
			name:       "snapshot count",
			question:   "Сколько снапшотов с отрицательным приростом?",
			wantMetric: intent.MetricSnapshotCount,
		},
		{
			name:       "distinct days",
			question:   "В сколько разных дней выходили видео в ноябре 2025?",
			wantMetric: intent.MetricDistinctDayCount,
		},
		{
			name:       "count above a lifetime views threshold",
			question:   "Сколько видео набрало больше 100000 просмотров?",
			wantMetric: intent.MetricVideoCount,
		},
		{
			name:       "distinct videos gaining views",
			question:   "Сколько разных видео получали новые просмотры 2025-11-27?",
			wantMetric: intent.MetricDistinctVideoCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			in, err := p.Parse(tt.question)

			require.NoError(t, err)
			assert.Equal(t, tt.wantMetric, in.Metric,
				"question: %s", tt.question)
		})
	}
}

// TestParseLifetimeWordingIsNotGrowth pins questions that mention views
// without growth phrasing: classifying them as a delta sum would silently
// answer a different question
func TestParseLifetimeWordingIsNotGrowth(t *testing.T) {
	p := New()

	for _, question := range []string{
		"Сколько видео набрало больше 100000 просмотров?",
		"Сколько разных видео получали новые просмотры 2025-11-27?",
	} {
		in, err := p.Parse(question)

		require.NoError(t, err, "question: %s", question)
		assert.NotEqual(t, intent.MetricDeltaViews, in.Metric, "question: %s", question)
		assert.NotEqual(t, intent.MetricDeltaLikes, in.Metric, "question: %s", question)
	}
}

// TestParseFilters tests filter extraction
func TestParseFilters(t *testing.T) {
	p := New()

	t.Run("iso date becomes a snapshot date filter", func(t *testing.T) {
		in, err := p.Parse("На сколько просмотров выросли все видео 2025-11-28?")

		require.NoError(t, err)
		require.Len(t, in.Filters, 1)
		assert.Equal(t, intent.ColumnSnapshotDate, in.Filters[0].Column)
		assert.Equal(t, intent.CompareEqual, in.Filters[0].Comparator)
		assert.Equal(t, "2025-11-28", in.Filters[0].Value)
	})

	t.Run("russian date is converted to ISO", func(t *testing.T) {
		in, err := p.Parse("Какой прирост просмотров был 3 ноября 2025?")

		require.NoError(t, err)
		require.Len(t, in.Filters, 1)
		assert.Equal(t, "2025-11-03", in.Filters[0].Value)
	})

	t.Run("date range is inclusive between", func(t *testing.T) {
		in, err := p.Parse("Прирост просмотров с 2025-11-01 по 2025-11-07")

		require.NoError(t, err)
		require.Len(t, in.Filters, 1)
		assert.Equal(t, intent.CompareBetween, in.Filters[0].Comparator)
		assert.Equal(t, "2025-11-01", in.Filters[0].Value)
		assert.Equal(t, "2025-11-07", in.Filters[0].UpperValue)
	})

	t.Run("hour range", func(t *testing.T) {
		in, err := p.Parse("Прирост просмотров 2025-11-28 с 10 по 14 час")

		require.NoError(t, err)
		require.Len(t, in.Filters, 2)
		assert.Equal(t, intent.ColumnSnapshotHour, in.Filters[1].Column)
		assert.Equal(t, "10", in.Filters[1].Value)
		assert.Equal(t, "14", in.Filters[1].UpperValue)
	})

	t.Run("creator id", func(t *testing.T) {
		in, err := p.Parse("Сколько видео у креатора 9f8c2d4e1a3b5c6d7e8f9a0b1c2d3e4f?")

		require.NoError(t, err)
		require.Len(t, in.Filters, 1)
		assert.Equal(t, intent.ColumnCreatorID, in.Filters[0].Column)
		assert.Equal(t, "9f8c2d4e1a3b5c6d7e8f9a0b1c2d3e4f", in.Filters[0].Value)
	})

	t.Run("negative delta", func(t *testing.T) {
		in, err := p.Parse("Сколько снапшотов с отрицательным приростом просмотров?")

		require.NoError(t, err)
		require.Len(t, in.Filters, 1)
		assert.Equal(t, intent.ColumnDeltaViews, in.Filters[0].Column)
		assert.Equal(t, intent.CompareLess, in.Filters[0].Comparator)
		assert.Equal(t, "0", in.Filters[0].Value)
	})

	t.Run("views threshold compares the lifetime counter", func(t *testing.T) {
		in, err := p.Parse("Сколько видео набрало больше 100000 просмотров?")

		require.NoError(t, err)
		require.Len(t, in.Filters, 1)
		assert.Equal(t, intent.ColumnViewsCount, in.Filters[0].Column)
		assert.Equal(t, intent.CompareGreater, in.Filters[0].Comparator)
		assert.Equal(t, "100000", in.Filters[0].Value)
	})

	t.Run("gaining new views means a positive delta", func(t *testing.T) {
		in, err := p.Parse("Сколько разных видео получали новые просмотры 2025-11-27?")

		require.NoError(t, err)
		require.Len(t, in.Filters, 2)
		assert.Equal(t, intent.ColumnSnapshotDate, in.Filters[0].Column)
		assert.Equal(t, "2025-11-27", in.Filters[0].Value)
		assert.Equal(t, intent.ColumnDeltaViews, in.Filters[1].Column)
		assert.Equal(t, intent.CompareGreater, in.Filters[1].Comparator)
		assert.Equal(t, "0", in.Filters[1].Value)
	})

	t.Run("day zero is carried for downstream validation", func(t *testing.T) {
		in, err := p.Parse("Какой прирост просмотров был 0 ноября 2025?")

		require.NoError(t, err)
		require.Len(t, in.Filters, 1)
		assert.Equal(t, "2025-11-00", in.Filters[0].Value)
	})

	t.Run("publication month and year", func(t *testing.T) {
		in, err := p.Parse("Сколько видео вышло в ноябре 2025?")

		require.NoError(t, err)
		require.Len(t, in.Filters, 2)
		assert.Equal(t, intent.ColumnPublishYear, in.Filters[0].Column)
		assert.Equal(t, "2025", in.Filters[0].Value)
		assert.Equal(t, intent.ColumnPublishMonth, in.Filters[1].Column)
		assert.Equal(t, "11", in.Filters[1].Value)
	})
}

// TestParseJoinHint tests that the advisory join hint matches the join policy
func TestParseJoinHint(t *testing.T) {
	p := New()

	t.Run("delta metric with creator filter", func(t *testing.T) {
		in, err := p.Parse("Прирост просмотров у креатора 9f8c2d4e1a3b5c6d7e8f9a0b1c2d3e4f")

		require.NoError(t, err)
		assert.True(t, in.NeedsCreatorJoin)
	})

	t.Run("video count with creator filter", func(t *testing.T) {
		in, err := p.Parse("Сколько видео у креатора 9f8c2d4e1a3b5c6d7e8f9a0b1c2d3e4f?")

		require.NoError(t, err)
		assert.False(t, in.NeedsCreatorJoin)
	})
}

// TestParseUnrecognized tests the fail-closed behavior
func TestParseUnrecognized(t *testing.T) {
	p := New()

	for _, question := range []string{
		"Какая погода в Москве?",
		"Удали все видео",
		"def main(): pass",
	} {
		in, err := p.Parse(question)

		require.Error(t, err, "question: %s", question)
		assert.Nil(t, in)
		assert.True(t, errors.HasCode(err, errors.ErrCodeUnrecognizedQuestion))
	}
}

// TestParseEmptyQuestion tests empty input handling
func TestParseEmptyQuestion(t *testing.T) {
	p := New()

	_, err := p.Parse("   ")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}
