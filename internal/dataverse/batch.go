package dataverse

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/dataverse-go/internal/odata"
)

// Batch submits ops as a single atomic changeset in one POST to $batch and
// returns the embedded responses in order. The POST is never retried; a
// throttled or failed submission is returned to the caller as is. If the server rejects the
// changeset, the failing part is returned as an *HTTPError and no partial
// results are returned.
func (c *Client) Batch(ctx context.Context, ops []odata.BatchOperation) ([]odata.BatchPartResponse, error) {
	body, contentType, err := odata.NewBatch().Encode(ops)
	if err != nil {
		return nil, err
	}

	header := http.Header{"Content-Type": []string{contentType}}

	resp, err := c.execute(ctx, http.MethodPost, "$batch", body, header, 1)
	if err != nil {
		return nil, err
	}

	if resp.Kind == KindNoContent {
		return []odata.BatchPartResponse{}, nil
	}

	parts, err := odata.ParseBatchResponse(resp.Header.Get("Content-Type"), resp.Body)
	if err != nil {
		return nil, err
	}

	for _, p := range parts {
		if p.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("dataverse: batch changeset rejected: %w",
				newHTTPError(p.StatusCode, p.Header, p.Body))
		}
	}

	c.logger.Info("batch committed",
		slog.Int("operations", len(ops)),
		slog.Int("responses", len(parts)),
	)

	return parts, nil
}
