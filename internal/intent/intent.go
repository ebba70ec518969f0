// Package intent defines the structured representation of a video analytics
// question. An Intent is produced by an extractor (the Russian-language parser
// or any other front-end) and consumed by the resolver; it is an immutable
// value object created per question.
package intent

// Metric identifies which statistic the question asks for
type Metric string

const (
	MetricTotalViews       Metric = "TOTAL_VIEWS"
	MetricTotalLikes       Metric = "TOTAL_LIKES"
	MetricDeltaViews       Metric = "DELTA_VIEWS"
	MetricDeltaLikes       Metric = "DELTA_LIKES"
	MetricVideoCount       Metric = "VIDEO_COUNT"
	MetricSnapshotCount    Metric = "SNAPSHOT_COUNT"
	MetricDistinctDayCount Metric = "DISTINCT_DAY_COUNT"

	// MetricDistinctVideoCount counts how many different videos appear among
	// the matching snapshots, e.g. "how many distinct videos gained views"
	MetricDistinctVideoCount Metric = "DISTINCT_VIDEO_COUNT"
)

// Known reports whether m is one of the supported metrics
func (m Metric) Known() bool {
	switch m {
	case MetricTotalViews, MetricTotalLikes, MetricDeltaViews, MetricDeltaLikes,
		MetricVideoCount, MetricSnapshotCount, MetricDistinctDayCount,
		MetricDistinctVideoCount:
		return true
	}
	return false
}

// Aggregation identifies how the metric expression is aggregated
type Aggregation string

const (
	AggregationSum           Aggregation = "SUM"
	AggregationCount         Aggregation = "COUNT"
	AggregationCountDistinct Aggregation = "COUNT_DISTINCT"
	AggregationNone          Aggregation = "NONE"
)

// Comparator is the operator of a filter
type Comparator string

const (
	CompareEqual   Comparator = "="
	CompareLess    Comparator = "<"
	CompareGreater Comparator = ">"
	CompareBetween Comparator = "BETWEEN"
)

// Column names a filterable column reference. The set is closed: the schema
// is a fixed external contract and the resolver treats these as constants.
type Column string

const (
	ColumnCreatorID    Column = "creator_id"
	ColumnSnapshotDate Column = "date(created_at)"
	ColumnSnapshotHour Column = "hour(created_at)"
	ColumnPublishMonth Column = "month(video_created_at)"
	ColumnPublishYear  Column = "year(video_created_at)"
	ColumnDeltaViews   Column = "delta_views_count"
	ColumnViewsCount   Column = "views_count"
)

// Filter is one WHERE-clause condition. Value holds the literal (or the lower
// bound for BETWEEN); UpperValue is set only for BETWEEN and is inclusive.
type Filter struct {
	Column     Column     `json:"column"`
	Comparator Comparator `json:"comparator"`
	Value      string     `json:"value"`
	UpperValue string     `json:"upper_value,omitempty"`
}

// Intent is the disambiguated form of one analytics question
type Intent struct {
	Metric      Metric      `json:"metric"`
	Aggregation Aggregation `json:"aggregation"`
	Filters     []Filter    `json:"filters,omitempty"`

	// NeedsCreatorJoin is a hint from the extractor. The resolver recomputes
	// the join plan from (metric, filters) and never trusts this flag; a hint
	// that demands a join the plan forbids is a resolution error.
	NeedsCreatorJoin bool `json:"needs_creator_join,omitempty"`

	// DistinctOn names the timestamp column for DISTINCT_DAY_COUNT
	DistinctOn string `json:"distinct_on,omitempty"`
}

// HasFilterOn reports whether the intent carries a filter on the given column
func (in Intent) HasFilterOn(col Column) bool {
	for _, f := range in.Filters {
		if f.Column == col {
			return true
		}
	}
	return false
}
