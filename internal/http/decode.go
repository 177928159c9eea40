package http

import (
	"context"
	"encoding/json"

	"github.com/fivetwenty-io/masto/pkg/masto"
)

// Decode parses a JSON body into T. Entities implementing masto.Validatable
// are validated; both failures yield a Validation error.
func Decode[T any](op string, body []byte) (*T, error) {
	var out T

	err := json.Unmarshal(body, &out)
	if err != nil {
		return nil, masto.NewValidationError(op, "malformed response body", err)
	}

	err = validate(any(&out))
	if err != nil {
		return nil, masto.NewValidationError(op, "unexpected response shape", err)
	}

	return &out, nil
}

// DecodeList parses a JSON array into []T, validating each element.
func DecodeList[T any](op string, body []byte) ([]T, error) {
	var out []T

	err := json.Unmarshal(body, &out)
	if err != nil {
		return nil, masto.NewValidationError(op, "malformed response body", err)
	}

	for i := range out {
		err = validate(any(&out[i]))
		if err != nil {
			return nil, masto.NewValidationError(op, "unexpected response shape", err)
		}
	}

	if out == nil {
		out = []T{}
	}

	return out, nil
}

func validate(v any) error {
	if validatable, ok := v.(masto.Validatable); ok {
		return validatable.Validate()
	}

	return nil
}

// Fetch executes req and decodes the response into T.
func Fetch[T any](ctx context.Context, client *Client, req *Request) (*T, error) {
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	return Decode[T](req.Method+" "+req.Path, resp.Body)
}

// GetJSON performs a GET and decodes the response into T.
func GetJSON[T any](ctx context.Context, client *Client, path string, params any) (*T, error) {
	return Fetch[T](ctx, client, &Request{Method: "GET", Path: path, Params: params})
}

// SendJSON performs a write request with params and decodes the response into T.
func SendJSON[T any](ctx context.Context, client *Client, method, path string, params any) (*T, error) {
	return Fetch[T](ctx, client, &Request{Method: method, Path: path, Params: params, RequireAuth: true})
}
