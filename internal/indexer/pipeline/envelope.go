package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
)

// Envelope is one corpus document.
type Envelope struct {
	URL  string
	Text string
}

// ReadEnvelope reads one JSON corpus document from r. A document of max
// bytes or more is rejected without being parsed.
func ReadEnvelope(r io.Reader, max int64) (Envelope, error) {
	data, err := io.ReadAll(io.LimitReader(r, max))
	if err != nil {
		return Envelope{}, fmt.Errorf("reading corpus document: %w", err)
	}
	if int64(len(data)) >= max {
		return Envelope{}, fmt.Errorf("%w: limit is %d bytes", apperrors.ErrEnvelopeTooLarge, max)
	}

	var raw struct {
		URL  *string `json:"url"`
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedEnvelope, err)
	}
	if raw.URL == nil {
		return Envelope{}, fmt.Errorf("%w: url", apperrors.ErrMissingField)
	}
	if raw.Text == nil {
		return Envelope{}, fmt.Errorf("%w: text", apperrors.ErrMissingField)
	}
	return Envelope{URL: *raw.URL, Text: *raw.Text}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrEnvelopeTooLarge):
		return "too_large"
	case errors.Is(err, apperrors.ErrMissingField):
		return "missing_field"
	case errors.Is(err, apperrors.ErrMalformedEnvelope):
		return "malformed"
	}
	return "read_error"
}
