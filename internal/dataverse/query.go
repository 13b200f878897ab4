package dataverse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tonimelisma/dataverse-go/internal/odata"
)

// ErrPageLimit is returned when a query needs more pages than allowed by
// WithMaxPages.
var ErrPageLimit = errors.New("dataverse: page limit reached")

// collectionPage is one page of a collection read.
type collectionPage struct {
	Value    []Record `json:"value"`
	NextLink string   `json:"@odata.nextLink"` //nolint:tagliatelle // OData spec field name
}

type queryOptions struct {
	maxPages    int
	maxPageSize int
}

// QueryOption tunes a collection read.
type QueryOption func(*queryOptions)

// WithMaxPages stops after n pages with ErrPageLimit if more remain.
// Zero means unbounded.
func WithMaxPages(n int) QueryOption {
	return func(o *queryOptions) { o.maxPages = n }
}

// WithMaxPageSize asks the server for at most n records per page.
func WithMaxPageSize(n int) QueryOption {
	return func(o *queryOptions) { o.maxPageSize = n }
}

// QueryPages reads entitySet filtered by spec, calling fn with each page in
// order. The first request carries the encoded spec; later requests follow
// @odata.nextLink verbatim. Records handed to fn before an error remain
// valid.
func (c *Client) QueryPages(
	ctx context.Context, entitySet string, spec odata.QuerySpec, fn func([]Record) error, opts ...QueryOption,
) error {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	var header http.Header
	if o.maxPageSize > 0 {
		header = http.Header{"Prefer": []string{"odata.maxpagesize=" + strconv.Itoa(o.maxPageSize)}}
	}

	endpoint := odata.WithQuery(entitySet, spec.Encode())
	total := 0

	for page := 1; ; page++ {
		if o.maxPages > 0 && page > o.maxPages {
			return fmt.Errorf("%w: %d pages of %s", ErrPageLimit, o.maxPages, entitySet)
		}

		resp, err := c.Execute(ctx, http.MethodGet, endpoint, nil, header)
		if err != nil {
			return err
		}

		var p collectionPage
		if err := resp.Decode(&p); err != nil {
			return fmt.Errorf("dataverse: decoding page %d of %s: %w", page, entitySet, err)
		}

		total += len(p.Value)

		c.logger.Debug("fetched page",
			slog.String("entity_set", entitySet),
			slog.Int("page", page),
			slog.Int("records", len(p.Value)),
		)

		if err := fn(p.Value); err != nil {
			return err
		}

		if p.NextLink == "" {
			c.logger.Info("query complete",
				slog.String("entity_set", entitySet),
				slog.Int("pages", page),
				slog.Int("records", total),
			)

			return nil
		}

		endpoint = p.NextLink
	}
}

// Query reads every page of entitySet filtered by spec and returns the
// records in server order. Any failure discards the partial result.
func (c *Client) Query(ctx context.Context, entitySet string, spec odata.QuerySpec, opts ...QueryOption) ([]Record, error) {
	var all []Record

	err := c.QueryPages(ctx, entitySet, spec, func(page []Record) error {
		all = append(all, page...)
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if all == nil {
		all = []Record{}
	}

	return all, nil
}
