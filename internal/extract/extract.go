// Package extract pulls the trending list and per-movie details from the
// upstream API into tables.
package extract

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	pjson "tmdbetl/internal/parser/json"
	"tmdbetl/internal/table"
)

// Endpoints.
const (
	TrendingEndpoint = "/trending/movie/day"
	movieEndpoint    = "/movie/"
)

// Fetcher performs one authenticated GET and returns the decoded body.
// *tmdb.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (*pjson.Object, error)
}

// Extractor builds tables from a Fetcher.
type Extractor struct {
	Fetcher Fetcher
	// Workers bounds concurrent detail fetches. Values below 1 mean 1.
	Workers int
}

// Trending fetches today's trending movies. The body's results array becomes
// the table, one row per movie in API order.
func (e *Extractor) Trending(ctx context.Context) (*table.Table, error) {
	body, err := e.Fetcher.Fetch(ctx, TrendingEndpoint)
	if err != nil {
		return nil, err
	}
	results, err := body.Objects("results")
	if err != nil {
		return nil, fmt.Errorf("extract: trending: %w", err)
	}
	return table.FromObjects(results), nil
}

// Details fetches /movie/{id} for every id. Row i of the result is the
// response for ids[i]. The first failure cancels outstanding fetches and no
// table is returned.
func (e *Extractor) Details(ctx context.Context, ids []int64) (*table.Table, error) {
	objs := make([]*pjson.Object, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.Workers, 1))
	for i, id := range ids {
		g.Go(func() error {
			obj, err := e.Fetcher.Fetch(gctx, movieEndpoint+strconv.FormatInt(id, 10))
			if err != nil {
				return fmt.Errorf("extract: details for id %d: %w", id, err)
			}
			objs[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return table.FromObjects(objs), nil
}

// IDs returns the id column of the trending table in row order. An empty
// table yields no ids even without an id column.
func IDs(trend *table.Table) ([]int64, error) {
	if trend.Len() == 0 && !trend.Has("id") {
		return []int64{}, nil
	}
	col, err := trend.Column("id")
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	ids := make([]int64, len(col))
	for i, v := range col {
		id, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("extract: row %d: id is %T, want integer", i, v)
		}
		ids[i] = id
	}
	return ids, nil
}
