package client

import (
	"net/url"

	"github.com/fivetwenty-io/masto/pkg/masto"
)

// resourcePath joins a collection path and an escaped identifier, failing
// locally when the identifier is empty.
func resourcePath(op, base, id string, suffix ...string) (string, error) {
	if id == "" {
		return "", masto.NewValidationError(op, "id is required", nil)
	}

	path := base + "/" + url.PathEscape(id)
	for _, s := range suffix {
		path += "/" + s
	}

	return path, nil
}
