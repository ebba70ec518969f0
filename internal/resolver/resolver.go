// Package resolver deterministically turns an intent into a PostgreSQL
// statement against the fixed two-table video analytics schema. It is a pure
// function: no I/O, no state, typed failures, byte-identical output for
// identical intents.
package resolver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/videolytics/query-service/internal/errors"
	"github.com/videolytics/query-service/internal/intent"
)

// Fixed schema tables. The schema is an external contract; nothing here
// infers or mutates it.
const (
	TableVideos    = "videos"
	TableSnapshots = "video_snapshots"
)

const joinClause = "JOIN videos ON video_snapshots.video_id = videos.id"

// Statement is a resolved, ready-to-execute query plus enough metadata to
// assert on structure without comparing SQL text.
type Statement struct {
	Text    string   `json:"text"`
	Tables  []string `json:"tables"`
	Columns []string `json:"columns"`
	Joined  bool     `json:"joined"`
}

// TouchesTable reports whether the statement reads the given table
func (s *Statement) TouchesTable(table string) bool {
	for _, t := range s.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// metricSource maps each metric to its base table and the column its
// expression reads. Keeping the mapping in one table is what makes the
// cumulative-vs-delta invariant structural: a TOTAL_* metric can never see
// video_snapshots and a DELTA_* metric can never see the lifetime counters.
type metricSource struct {
	table  string
	column string
}

var metricSources = map[intent.Metric]metricSource{
	intent.MetricTotalViews:         {TableVideos, "views_count"},
	intent.MetricTotalLikes:         {TableVideos, "likes_count"},
	intent.MetricDeltaViews:         {TableSnapshots, "delta_views_count"},
	intent.MetricDeltaLikes:         {TableSnapshots, "delta_likes_count"},
	intent.MetricVideoCount:         {TableVideos, "*"},
	intent.MetricSnapshotCount:      {TableSnapshots, "*"},
	intent.MetricDistinctVideoCount: {TableSnapshots, "video_id"},
}

// distinctDaySources lists the timestamp columns DISTINCT_DAY_COUNT may
// take the date of, with the table each one lives on.
var distinctDaySources = map[string]string{
	"video_created_at": TableVideos,
	"created_at":       TableSnapshots,
}

// filterHomes maps each filter column to the table that owns it
var filterHomes = map[intent.Column]string{
	intent.ColumnCreatorID:    TableVideos,
	intent.ColumnSnapshotDate: TableSnapshots,
	intent.ColumnSnapshotHour: TableSnapshots,
	intent.ColumnPublishMonth: TableVideos,
	intent.ColumnPublishYear:  TableVideos,
	intent.ColumnDeltaViews:   TableSnapshots,
	intent.ColumnViewsCount:   TableVideos,
}

// Resolve turns an intent into a Statement or a typed resolution error.
// Ambiguity fails closed: no best-guess queries.
func Resolve(in intent.Intent) (*Statement, error) {
	source, err := resolveSource(in)
	if err != nil {
		return nil, err
	}

	joined, err := planCreatorJoin(in, source.table)
	if err != nil {
		return nil, err
	}

	expr, err := selectExpression(in, source, joined)
	if err != nil {
		return nil, err
	}

	tables := []string{source.table}
	if joined {
		tables = append(tables, TableVideos)
	}

	conditions, err := compileFilters(in, tables, joined)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(expr)
	sb.WriteString(" FROM ")
	sb.WriteString(source.table)
	if joined {
		sb.WriteString(" ")
		sb.WriteString(joinClause)
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(";")

	return &Statement{
		Text:    sb.String(),
		Tables:  tables,
		Columns: []string{source.column},
		Joined:  joined,
	}, nil
}

// resolveSource decides which table and column the metric reads
func resolveSource(in intent.Intent) (metricSource, error) {
	if in.Metric == intent.MetricDistinctDayCount {
		if in.DistinctOn == "" {
			return metricSource{}, errors.NewMissingDistinctColumnError()
		}
		table, ok := distinctDaySources[in.DistinctOn]
		if !ok {
			return metricSource{}, errors.NewMissingDistinctColumnError().
				WithDetails(fmt.Sprintf("Column %q is not a known timestamp column", in.DistinctOn))
		}
		return metricSource{table: table, column: in.DistinctOn}, nil
	}

	source, ok := metricSources[in.Metric]
	if !ok {
		return metricSource{}, errors.NewUnsupportedMetricError(string(in.Metric), string(in.Aggregation))
	}
	return source, nil
}

// selectExpression builds the SELECT list for the metric, rejecting
// aggregations outside the mapping table. Once the statement joins videos,
// snapshot columns are qualified: created_at exists on both tables and
// PostgreSQL rejects the bare reference as ambiguous.
func selectExpression(in intent.Intent, source metricSource, joined bool) (string, error) {
	agg := in.Aggregation
	if agg == "" {
		agg = intent.AggregationNone
	}

	column := source.column
	if joined && source.table == TableSnapshots {
		column = TableSnapshots + "." + column
	}

	switch in.Metric {
	case intent.MetricTotalViews, intent.MetricTotalLikes:
		switch agg {
		case intent.AggregationNone:
			return column, nil
		case intent.AggregationSum:
			return fmt.Sprintf("SUM(%s)", column), nil
		}

	case intent.MetricDeltaViews, intent.MetricDeltaLikes:
		// Deltas are per-hour differences and only meaningful summed; NONE is
		// treated as the implied SUM
		switch agg {
		case intent.AggregationNone, intent.AggregationSum:
			return fmt.Sprintf("SUM(%s)", column), nil
		}

	case intent.MetricVideoCount, intent.MetricSnapshotCount:
		switch agg {
		case intent.AggregationNone, intent.AggregationCount:
			return "COUNT(*)", nil
		}

	case intent.MetricDistinctDayCount:
		switch agg {
		case intent.AggregationNone, intent.AggregationCountDistinct:
			return fmt.Sprintf("COUNT(DISTINCT DATE(%s))", column), nil
		}

	case intent.MetricDistinctVideoCount:
		switch agg {
		case intent.AggregationNone, intent.AggregationCountDistinct:
			return fmt.Sprintf("COUNT(DISTINCT %s)", column), nil
		}
	}

	return "", errors.NewUnsupportedMetricError(string(in.Metric), string(agg))
}

// planCreatorJoin computes whether the statement needs the snapshot->videos
// join. The plan depends only on (metric table, filters); the caller's hint is
// checked against it, never followed.
func planCreatorJoin(in intent.Intent, metricTable string) (bool, error) {
	needed := metricTable == TableSnapshots && in.HasFilterOn(intent.ColumnCreatorID)

	if in.NeedsCreatorJoin && !needed {
		return false, errors.NewInvalidJoinPlanError(
			"The intent demands a creator join, but the metric reads a table where creator_id is directly available")
	}

	return needed, nil
}

// compileFilters renders each filter in input order, verifying its column
// belongs to a table the statement touches
func compileFilters(in intent.Intent, tables []string, joined bool) ([]string, error) {
	if len(in.Filters) == 0 {
		return nil, nil
	}

	touched := make(map[string]bool, len(tables))
	for _, t := range tables {
		touched[t] = true
	}

	conditions := make([]string, 0, len(in.Filters))
	for _, f := range in.Filters {
		home, ok := filterHomes[f.Column]
		if !ok {
			return nil, errors.NewConflictingFiltersError(string(f.Column), "unknown")
		}
		if !touched[home] {
			return nil, errors.NewConflictingFiltersError(string(f.Column), home)
		}
		// Lifetime counters never appear in snapshot statements, even when the
		// creator join makes videos reachable
		if f.Column == intent.ColumnViewsCount && tables[0] != TableVideos {
			return nil, errors.NewConflictingFiltersError(string(f.Column), tables[0])
		}

		cond, err := compileFilter(f, joined)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	return conditions, nil
}

func compileFilter(f intent.Filter, joined bool) (string, error) {
	switch f.Column {
	case intent.ColumnCreatorID:
		if f.Comparator != intent.CompareEqual {
			return "", errors.NewInvalidInputError("filter", "creator_id supports only equality")
		}
		column := "creator_id"
		if joined {
			column = "videos.creator_id"
		}
		return fmt.Sprintf("%s = '%s'", column, f.Value), nil

	case intent.ColumnSnapshotDate:
		timestamp := snapshotColumn("created_at", joined)
		switch f.Comparator {
		case intent.CompareEqual:
			if err := checkDate(f.Value); err != nil {
				return "", err
			}
			return fmt.Sprintf("DATE(%s) = '%s'", timestamp, f.Value), nil
		case intent.CompareBetween:
			if err := checkDateRange(f.Value, f.UpperValue); err != nil {
				return "", err
			}
			return fmt.Sprintf("DATE(%s) BETWEEN '%s' AND '%s'", timestamp, f.Value, f.UpperValue), nil
		}
		return "", errors.NewInvalidInputError("filter", "date(created_at) supports only = and BETWEEN")

	case intent.ColumnSnapshotHour:
		timestamp := snapshotColumn("created_at", joined)
		switch f.Comparator {
		case intent.CompareEqual:
			if _, err := checkHour(f.Value); err != nil {
				return "", err
			}
			return fmt.Sprintf("EXTRACT(HOUR FROM %s) = %s", timestamp, f.Value), nil
		case intent.CompareBetween:
			if err := checkHourRange(f.Value, f.UpperValue); err != nil {
				return "", err
			}
			return fmt.Sprintf("EXTRACT(HOUR FROM %s) BETWEEN %s AND %s", timestamp, f.Value, f.UpperValue), nil
		}
		return "", errors.NewInvalidInputError("filter", "hour(created_at) supports only = and BETWEEN")

	case intent.ColumnPublishMonth:
		if f.Comparator != intent.CompareEqual {
			return "", errors.NewInvalidInputError("filter", "month(video_created_at) supports only equality")
		}
		month, err := checkInt(f.Value, "month")
		if err != nil {
			return "", err
		}
		if month < 1 || month > 12 {
			return "", errors.NewInvalidRangeError(fmt.Sprintf("Month %d is outside 1..12", month))
		}
		return fmt.Sprintf("EXTRACT(MONTH FROM video_created_at) = %s", f.Value), nil

	case intent.ColumnPublishYear:
		if f.Comparator != intent.CompareEqual {
			return "", errors.NewInvalidInputError("filter", "year(video_created_at) supports only equality")
		}
		if _, err := checkInt(f.Value, "year"); err != nil {
			return "", err
		}
		return fmt.Sprintf("EXTRACT(YEAR FROM video_created_at) = %s", f.Value), nil

	case intent.ColumnDeltaViews:
		switch f.Comparator {
		case intent.CompareEqual, intent.CompareLess, intent.CompareGreater:
			if _, err := checkInt(f.Value, "delta_views_count"); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s %s %s", snapshotColumn("delta_views_count", joined), f.Comparator, f.Value), nil
		}
		return "", errors.NewInvalidInputError("filter", "delta_views_count supports only =, < and >")

	case intent.ColumnViewsCount:
		switch f.Comparator {
		case intent.CompareEqual, intent.CompareLess, intent.CompareGreater:
			if _, err := checkInt(f.Value, "views_count"); err != nil {
				return "", err
			}
			return fmt.Sprintf("views_count %s %s", f.Comparator, f.Value), nil
		}
		return "", errors.NewInvalidInputError("filter", "views_count supports only =, < and >")
	}

	return "", errors.NewConflictingFiltersError(string(f.Column), "unknown")
}

// snapshotColumn qualifies a video_snapshots column once videos is joined in;
// created_at in particular exists on both tables.
func snapshotColumn(name string, joined bool) string {
	if joined {
		return TableSnapshots + "." + name
	}
	return name
}

func checkDate(value string) error {
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return errors.NewInvalidRangeError(fmt.Sprintf("%q is not a YYYY-MM-DD date", value))
	}
	return nil
}

func checkDateRange(low, high string) error {
	from, err := time.Parse("2006-01-02", low)
	if err != nil {
		return errors.NewInvalidRangeError(fmt.Sprintf("%q is not a YYYY-MM-DD date", low))
	}
	to, err := time.Parse("2006-01-02", high)
	if err != nil {
		return errors.NewInvalidRangeError(fmt.Sprintf("%q is not a YYYY-MM-DD date", high))
	}
	if from.After(to) {
		return errors.NewInvalidRangeError(fmt.Sprintf("Date range %s..%s is inverted", low, high))
	}
	return nil
}

func checkHour(value string) (int, error) {
	hour, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.NewInvalidRangeError(fmt.Sprintf("%q is not an hour", value))
	}
	if hour < 0 || hour > 23 {
		return 0, errors.NewInvalidRangeError(fmt.Sprintf("Hour %d is outside 0..23", hour))
	}
	return hour, nil
}

func checkHourRange(low, high string) error {
	h1, err := checkHour(low)
	if err != nil {
		return err
	}
	h2, err := checkHour(high)
	if err != nil {
		return err
	}
	if h1 > h2 {
		return errors.NewInvalidRangeError(fmt.Sprintf("Hour range %d..%d is inverted", h1, h2))
	}
	return nil
}

func checkInt(value, field string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.NewInvalidInputError(field, fmt.Sprintf("%q is not an integer", value))
	}
	return n, nil
}
