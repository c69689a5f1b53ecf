package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidBatch rejects request bodies that are not one of the accepted
// shapes. The whole batch fails; there is no per-item salvage for a body the
// decoder cannot interpret.
var ErrInvalidBatch = errors.New("pipeline: unsupported input format")

// batchEnvelope is the object form of the request body.
type batchEnvelope struct {
	Requests []string `json:"requests"`
}

// ParseBatch decodes a request body into pipeline items. Accepted shapes:
// a JSON string (single request), a JSON array of strings, or an object
// {"requests": [...]}. Each item gets a fresh UUID and starts in NEW.
func ParseBatch(body []byte) ([]*Item, error) {
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, ErrInvalidBatch
	}

	var texts []string

	var single string
	var many []string
	var envelope batchEnvelope

	switch {
	case json.Unmarshal(body, &single) == nil:
		texts = []string{single}
	case json.Unmarshal(body, &many) == nil:
		texts = many
	case json.Unmarshal(body, &envelope) == nil && envelope.Requests != nil:
		texts = envelope.Requests
	default:
		return nil, ErrInvalidBatch
	}

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidBatch)
	}

	items := make([]*Item, len(texts))
	for i, text := range texts {
		items[i] = &Item{
			ID:      uuid.NewString(),
			RawText: text,
			State:   StateNew,
		}
	}
	return items, nil
}
