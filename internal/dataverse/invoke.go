package dataverse

import (
	"context"
	"net/http"

	"github.com/tonimelisma/dataverse-go/internal/odata"
)

// InvokeFunction calls an OData function with inline parameters, optionally
// bound to an entity path such as "systemusers(<id>)".
func (c *Client) InvokeFunction(ctx context.Context, name string, params map[string]any, bound string) (*Response, error) {
	path, err := odata.FunctionPath(name, params, bound)
	if err != nil {
		return nil, err
	}

	return c.Execute(ctx, http.MethodGet, path, nil, nil)
}

// InvokeAction calls an OData action with a JSON payload, optionally bound
// to an entity path.
func (c *Client) InvokeAction(ctx context.Context, name string, payload any, bound string) (*Response, error) {
	body, err := encodeBody(payload)
	if err != nil {
		return nil, err
	}

	if body == nil {
		body = []byte("{}")
	}

	return c.Execute(ctx, http.MethodPost, odata.ActionPath(name, bound), body, nil)
}

// WhoAmIResult identifies the calling user.
type WhoAmIResult struct {
	UserID         string `json:"UserId"`         //nolint:tagliatelle // Web API field name
	BusinessUnitID string `json:"BusinessUnitId"` //nolint:tagliatelle // Web API field name
	OrganizationID string `json:"OrganizationId"` //nolint:tagliatelle // Web API field name
}

// WhoAmI calls the WhoAmI function.
func (c *Client) WhoAmI(ctx context.Context) (*WhoAmIResult, error) {
	resp, err := c.InvokeFunction(ctx, "WhoAmI", nil, "")
	if err != nil {
		return nil, err
	}

	var res WhoAmIResult
	if err := resp.Decode(&res); err != nil {
		return nil, err
	}

	return &res, nil
}
