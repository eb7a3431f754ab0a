package content

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/eargollo/reclaim/internal/media"
)

// PageFunc fetches one 1-based page of content groups. An empty page marks
// the end of the data.
type PageFunc func(ctx context.Context, page int) ([]media.ContentGroup, error)

// AggregatePages fetches pages in rounds of width concurrent requests
// ([cursor, cursor+width)) and concatenates them in ascending page order,
// regardless of completion order. After a round containing an empty page no
// further round is issued; the non-empty pages of that round are kept.
// Any page error aborts the whole aggregation.
func AggregatePages(ctx context.Context, fetch PageFunc, width int) ([]media.ContentGroup, error) {
	if width < 1 {
		width = 1
	}

	var all []media.ContentGroup
	for cursor := 1; ; cursor += width {
		pages := make([][]media.ContentGroup, width)

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < width; i++ {
			page := cursor + i
			g.Go(func() error {
				items, err := fetch(gctx, page)
				if err != nil {
					return err
				}
				pages[i] = items
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		done := false
		for _, items := range pages {
			if len(items) == 0 {
				done = true
				continue
			}
			all = append(all, items...)
		}
		slog.Debug("dupes round fetched", "first_page", cursor, "width", width, "total", len(all), "last", done)
		if done {
			return all, nil
		}
	}
}
