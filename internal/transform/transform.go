// Package transform reshapes the extracted tables into their warehouse form.
// Every function returns a new table and leaves its input untouched.
package transform

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"tmdbetl/internal/table"
)

// Columns removed before loading.
var (
	trendDropped  = []string{"original_title", "media_type", "genre_ids"}
	detailDropped = []string{"genres"}
)

// MovieGenre returns one (id, genre_ids) row per genre of each trending
// movie. It must run before Trend, which drops genre_ids.
func MovieGenre(trend *table.Table) (*table.Table, error) {
	if trend.Len() == 0 && !trend.Has("id") {
		return table.New([]string{"id", "genre_ids"}, nil)
	}
	sel, err := trend.Select("id", "genre_ids")
	if err != nil {
		return nil, fmt.Errorf("movie_genre: %w", err)
	}
	return sel.Explode("genre_ids")
}

// Trend drops the columns not kept in the warehouse, parses release_date,
// and appends rank (by popularity, highest first) and rank_date (now in UTC).
func Trend(trend *table.Table, now time.Time) (*table.Table, error) {
	out := trend.Drop(trendDropped...)
	out, err := parseReleaseDate(out)
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}

	var pop []any
	if out.Len() > 0 || out.Has("popularity") {
		if pop, err = out.Column("popularity"); err != nil {
			return nil, fmt.Errorf("trend: %w", err)
		}
	}
	ranks, err := RankDescending(pop)
	if err != nil {
		return nil, fmt.Errorf("trend: popularity: %w", err)
	}
	if out, err = out.WithColumn("rank", ranks); err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}

	stamp := make([]any, out.Len())
	for i := range stamp {
		stamp[i] = now.UTC()
	}
	out, err = out.WithColumn("rank_date", stamp)
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	return out, nil
}

// Detail drops genres and parses release_date.
func Detail(details *table.Table) (*table.Table, error) {
	out, err := parseReleaseDate(details.Drop(detailDropped...))
	if err != nil {
		return nil, fmt.Errorf("details: %w", err)
	}
	return out, nil
}

func parseReleaseDate(t *table.Table) (*table.Table, error) {
	if !t.Has("release_date") {
		return t, nil
	}
	return t.MapColumn("release_date", ParseDate)
}

// ParseDate converts a "YYYY-MM-DD" string to civil.Date. nil and "" become
// nil; anything else that does not parse is an error.
func ParseDate(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case civil.Date:
		return x, nil
	case string:
		if x == "" {
			return nil, nil
		}
		d, err := civil.ParseDate(x)
		if err != nil {
			return nil, fmt.Errorf("release_date %q: %w", x, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("release_date is %T, want string", v)
	}
}

// RankDescending ranks numeric values from highest (rank 1) to lowest using
// standard competition ranking: equal values share the lowest rank of their
// group and the next rank skips (1, 2, 2, 4). Null values get a null rank.
func RankDescending(values []any) ([]any, error) {
	type entry struct {
		idx int
		v   float64
	}
	entries := make([]entry, 0, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil:
		case int64:
			entries = append(entries, entry{i, float64(x)})
		case float64:
			entries = append(entries, entry{i, x})
		case int:
			entries = append(entries, entry{i, float64(x)})
		default:
			return nil, fmt.Errorf("row %d is %T, want number", i, v)
		}
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].v > entries[b].v })

	out := make([]any, len(values))
	for pos, e := range entries {
		rank := int64(pos + 1)
		if pos > 0 && e.v == entries[pos-1].v {
			rank = out[entries[pos-1].idx].(int64)
		}
		out[e.idx] = rank
	}
	return out, nil
}
