package dataverse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/dataverse-go/internal/odata"
)

// GetOptions narrows a single-record read.
type GetOptions struct {
	Select []string
	Expand []string
}

// Create inserts a record into entitySet and asks for the created
// representation. The new key is available from Response.EntityID.
func (c *Client) Create(ctx context.Context, entitySet string, data any) (*Response, error) {
	body, err := encodeBody(data)
	if err != nil {
		return nil, err
	}

	header := http.Header{"Prefer": []string{"return=representation"}}

	resp, err := c.Execute(ctx, http.MethodPost, entitySet, body, header)
	if err != nil {
		return nil, err
	}

	c.logger.Info("created record",
		slog.String("entity_set", entitySet),
		slog.String("id", resp.EntityID()),
	)

	return resp, nil
}

// Get reads one record by key.
func (c *Client) Get(ctx context.Context, entitySet, id string, opts GetOptions) (Record, error) {
	query := odata.QuerySpec{Select: opts.Select, Expand: opts.Expand}.Encode()
	endpoint := odata.WithQuery(odata.EntityPath(entitySet, id), query)

	resp, err := c.Execute(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}

	return resp.Record()
}

// Update applies a partial update (PATCH) to one record.
func (c *Client) Update(ctx context.Context, entitySet, id string, data any) error {
	body, err := encodeBody(data)
	if err != nil {
		return err
	}

	if _, err := c.Execute(ctx, http.MethodPatch, odata.EntityPath(entitySet, id), body, nil); err != nil {
		return err
	}

	c.logger.Info("updated record", slog.String("entity_set", entitySet), slog.String("id", id))

	return nil
}

// Delete removes one record.
func (c *Client) Delete(ctx context.Context, entitySet, id string) error {
	if _, err := c.Execute(ctx, http.MethodDelete, odata.EntityPath(entitySet, id), nil, nil); err != nil {
		return err
	}

	c.logger.Info("deleted record", slog.String("entity_set", entitySet), slog.String("id", id))

	return nil
}

// encodeBody marshals data as JSON. []byte and json.RawMessage pass through.
func encodeBody(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("dataverse: encoding request body: %w", err)
	}

	return body, nil
}
