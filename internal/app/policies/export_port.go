package policies

import (
	"context"
	"io"

	"slotkeeper/internal/app/dto"
)

// CalendarEncoder renders a resource calendar into a feed format.
type CalendarEncoder interface {
	ContentType() string
	Extension() string
	Encode(cal dto.Calendar) ([]byte, error)
}

// Uploader stores binary content and returns a URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (publicURL string, err error)
}
