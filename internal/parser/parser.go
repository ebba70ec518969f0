// Package parser turns Russian-language video statistics questions into
// structured intents. It is deliberately conservative: a question that does
// not clearly name a supported metric fails typed instead of guessing.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/videolytics/query-service/internal/errors"
	"github.com/videolytics/query-service/internal/intent"
)

// Parser extracts intents from natural language questions
type Parser struct {
	patterns map[string]*regexp.Regexp
}

// ruMonths maps Russian month names (genitive and prepositional forms, the
// ones that appear after a day number or "в"/"за") to month numbers
var ruMonths = map[string]int{
	"января": 1, "январе": 1,
	"февраля": 2, "феврале": 2,
	"марта": 3, "марте": 3,
	"апреля": 4, "апреле": 4,
	"мая": 5, "мае": 5,
	"июня": 6, "июне": 6,
	"июля": 7, "июле": 7,
	"августа": 8, "августе": 8,
	"сентября": 9, "сентябре": 9,
	"октября": 10, "октябре": 10,
	"ноября": 11, "ноябре": 11,
	"декабря": 12, "декабре": 12,
}

const ruMonthNames = "января|январе|февраля|феврале|марта|марте|апреля|апреле|мая|мае|июня|июне|июля|июле|августа|августе|сентября|сентябре|октября|октябре|ноября|ноябре|декабря|декабре"

// New creates a parser with the compiled pattern set
func New() *Parser {
	patterns := map[string]*regexp.Regexp{
		// Growth wording only. Looser triggers like "набрал" describe the
		// lifetime counter ("набрало больше 100000 просмотров"), not the
		// hourly delta.
		"delta":           regexp.MustCompile(`(выросл|вырос|прирост|рост[ау]?\b)`),
		"gained_new":      regexp.MustCompile(`(получал\w*|получил\w*|набирал\w*)\s+нов\w+`),
		"likes":           regexp.MustCompile(`лайк`),
		"views":           regexp.MustCompile(`просмотр`),
		"video_count":     regexp.MustCompile(`(сколько|количество|число)\s+(всего\s+)?видео`),
		"distinct_videos": regexp.MustCompile(`(скольк\w*|количество|число)\s+разных\s+видео`),
		"snapshot_count":  regexp.MustCompile(`(сколько|количество|число)\s+(снапшот|замер|измерени)`),
		"distinct_days":   regexp.MustCompile(`(скольк\w*|в какие)\s+(разных\s+)?дн(ей|я|и)`),
		"total":           regexp.MustCompile(`(сумма|суммарн|всего|итого)`),

		"iso_date":   regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		"ru_date":    regexp.MustCompile(`\b(\d{1,2})\s+(` + ruMonthNames + `)\s+(\d{4})\b`),
		"date_range": regexp.MustCompile(`с\s+(\d{4}-\d{2}-\d{2})\s+по\s+(\d{4}-\d{2}-\d{2})`),
		"hour_range": regexp.MustCompile(`с\s+(\d{1,2})\s+по\s+(\d{1,2})\s+час`),
		"month_year": regexp.MustCompile(`(?:в|за)\s+(` + ruMonthNames + `)\s+(\d{4})\b`),
		"creator_id": regexp.MustCompile(`\b([0-9a-f]{32}|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\b`),

		"negative_delta": regexp.MustCompile(`(отрицательн|потерял|меньше нуля|упал)`),
		"compare":        regexp.MustCompile(`(больше|более|меньше|менее)\s+(\d+)`),
		"publication":    regexp.MustCompile(`(опубликован|выходил|вышл|создан|загру(зил|жен))`),
	}
	return &Parser{patterns: patterns}
}

// Parse extracts a structured intent from a question, or fails typed when no
// supported metric is recognized
func (p *Parser) Parse(question string) (*intent.Intent, error) {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return nil, errors.NewInvalidInputError("question", "question is empty")
	}

	in, err := p.classifyMetric(q)
	if err != nil {
		return nil, err
	}

	p.extractFilters(q, in)

	// The join hint mirrors what the resolver will compute; it is advisory
	// only, the resolver re-derives it
	in.NeedsCreatorJoin = snapshotMetric(in.Metric) && in.HasFilterOn(intent.ColumnCreatorID)

	return in, nil
}

// classifyMetric decides which statistic the question asks for. Growth
// wording is checked before totals: "на сколько просмотров выросли" mentions
// both and means the delta.
func (p *Parser) classifyMetric(q string) (*intent.Intent, error) {
	switch {
	case p.patterns["delta"].MatchString(q) && p.patterns["likes"].MatchString(q):
		return &intent.Intent{Metric: intent.MetricDeltaLikes, Aggregation: intent.AggregationSum}, nil

	case p.patterns["delta"].MatchString(q) && p.patterns["views"].MatchString(q):
		return &intent.Intent{Metric: intent.MetricDeltaViews, Aggregation: intent.AggregationSum}, nil

	case p.patterns["distinct_videos"].MatchString(q):
		return &intent.Intent{
			Metric:      intent.MetricDistinctVideoCount,
			Aggregation: intent.AggregationCountDistinct,
		}, nil

	case p.patterns["distinct_days"].MatchString(q):
		distinctOn := "video_created_at"
		if !p.patterns["publication"].MatchString(q) &&
			(p.patterns["delta"].MatchString(q) || p.patterns["gained_new"].MatchString(q)) {
			distinctOn = "created_at"
		}
		return &intent.Intent{
			Metric:      intent.MetricDistinctDayCount,
			Aggregation: intent.AggregationCountDistinct,
			DistinctOn:  distinctOn,
		}, nil

	case p.patterns["snapshot_count"].MatchString(q):
		return &intent.Intent{Metric: intent.MetricSnapshotCount, Aggregation: intent.AggregationCount}, nil

	case p.patterns["video_count"].MatchString(q):
		return &intent.Intent{Metric: intent.MetricVideoCount, Aggregation: intent.AggregationCount}, nil

	case p.patterns["total"].MatchString(q) && p.patterns["likes"].MatchString(q):
		return &intent.Intent{Metric: intent.MetricTotalLikes, Aggregation: intent.AggregationSum}, nil

	case p.patterns["total"].MatchString(q) && p.patterns["views"].MatchString(q):
		return &intent.Intent{Metric: intent.MetricTotalViews, Aggregation: intent.AggregationSum}, nil
	}

	return nil, errors.NewUnrecognizedQuestionError(q)
}

// extractFilters pulls dates, ranges, creator IDs and delta comparisons out
// of the question, in a stable order so the rendered SQL is reproducible
func (p *Parser) extractFilters(q string, in *intent.Intent) {
	if match := p.patterns["creator_id"].FindStringSubmatch(q); len(match) > 1 {
		in.Filters = append(in.Filters, intent.Filter{
			Column:     intent.ColumnCreatorID,
			Comparator: intent.CompareEqual,
			Value:      match[1],
		})
	}

	snapshots := snapshotMetric(in.Metric) || in.DistinctOn == "created_at"

	if snapshots {
		if match := p.patterns["date_range"].FindStringSubmatch(q); len(match) > 2 {
			in.Filters = append(in.Filters, intent.Filter{
				Column:     intent.ColumnSnapshotDate,
				Comparator: intent.CompareBetween,
				Value:      match[1],
				UpperValue: match[2],
			})
		} else if date, ok := p.extractDate(q); ok {
			in.Filters = append(in.Filters, intent.Filter{
				Column:     intent.ColumnSnapshotDate,
				Comparator: intent.CompareEqual,
				Value:      date,
			})
		}

		if match := p.patterns["hour_range"].FindStringSubmatch(q); len(match) > 2 {
			in.Filters = append(in.Filters, intent.Filter{
				Column:     intent.ColumnSnapshotHour,
				Comparator: intent.CompareBetween,
				Value:      match[1],
				UpperValue: match[2],
			})
		}

		p.extractDeltaComparison(q, in)
	} else {
		// A numeric bound on a videos count question compares the lifetime
		// counter: "набрало больше 100000 просмотров" is views_count > 100000
		if in.Metric == intent.MetricVideoCount && p.patterns["views"].MatchString(q) {
			if match := p.patterns["compare"].FindStringSubmatch(q); len(match) > 2 {
				in.Filters = append(in.Filters, intent.Filter{
					Column:     intent.ColumnViewsCount,
					Comparator: compareDirection(match[1]),
					Value:      match[2],
				})
			}
		}

		// Videos metrics filter on the publication month/year
		if match := p.patterns["month_year"].FindStringSubmatch(q); len(match) > 2 {
			in.Filters = append(in.Filters, intent.Filter{
				Column:     intent.ColumnPublishYear,
				Comparator: intent.CompareEqual,
				Value:      match[2],
			})
			in.Filters = append(in.Filters, intent.Filter{
				Column:     intent.ColumnPublishMonth,
				Comparator: intent.CompareEqual,
				Value:      fmt.Sprintf("%d", ruMonths[match[1]]),
			})
		}
	}
}

// extractDate finds an ISO or Russian-worded calendar date
func (p *Parser) extractDate(q string) (string, bool) {
	if match := p.patterns["iso_date"].FindStringSubmatch(q); len(match) > 1 {
		return match[1], true
	}

	if match := p.patterns["ru_date"].FindStringSubmatch(q); len(match) > 3 {
		month, ok := ruMonths[match[2]]
		if !ok {
			return "", false
		}
		// An out-of-range day still renders; the resolver's date check rejects
		// it typed instead of the filter silently disappearing
		day, err := strconv.Atoi(match[1])
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("%s-%02d-%02d", match[3], month, day), true
	}

	return "", false
}

// extractDeltaComparison finds numeric conditions on the hourly view delta
func (p *Parser) extractDeltaComparison(q string, in *intent.Intent) {
	if p.patterns["negative_delta"].MatchString(q) {
		in.Filters = append(in.Filters, intent.Filter{
			Column:     intent.ColumnDeltaViews,
			Comparator: intent.CompareLess,
			Value:      "0",
		})
		return
	}

	// Plain growth questions say "получали новые просмотры": a positive delta
	switch in.Metric {
	case intent.MetricSnapshotCount, intent.MetricDistinctDayCount, intent.MetricDistinctVideoCount:
		if match := p.patterns["compare"].FindStringSubmatch(q); len(match) > 2 && p.patterns["views"].MatchString(q) {
			in.Filters = append(in.Filters, intent.Filter{
				Column:     intent.ColumnDeltaViews,
				Comparator: compareDirection(match[1]),
				Value:      match[2],
			})
		} else if (p.patterns["delta"].MatchString(q) || p.patterns["gained_new"].MatchString(q)) &&
			p.patterns["views"].MatchString(q) {
			in.Filters = append(in.Filters, intent.Filter{
				Column:     intent.ColumnDeltaViews,
				Comparator: intent.CompareGreater,
				Value:      "0",
			})
		}
	}
}

func compareDirection(word string) intent.Comparator {
	if word == "меньше" || word == "менее" {
		return intent.CompareLess
	}
	return intent.CompareGreater
}

func snapshotMetric(m intent.Metric) bool {
	switch m {
	case intent.MetricDeltaViews, intent.MetricDeltaLikes, intent.MetricSnapshotCount,
		intent.MetricDistinctVideoCount:
		return true
	}
	return false
}
