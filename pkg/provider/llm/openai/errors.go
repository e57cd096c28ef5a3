package openai

import (
	"errors"
	"net/http"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/parley/pkg/provider/httpapi"
)

// classify maps SDK API errors onto httpapi.StatusError so callers see the
// same transport error shape regardless of backend.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &httpapi.StatusError{
			Method: http.MethodPost,
			URL:    "/chat/completions",
			Code:   apiErr.StatusCode,
			Reason: http.StatusText(apiErr.StatusCode),
			Body:   apiErr.Message,
		}
	}
	return err
}
