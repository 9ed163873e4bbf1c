package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"NewsAggregator/internal/scanner"
)

const userAgent = "NewsAggregator/1.0"

// maxBodyBytes caps how much of a single source response is read.
const maxBodyBytes = 10 << 20

// statusError is returned when an upstream answers with a non-200 status.
type statusError struct {
	status string
	code   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.status)
}

func fetch(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.Status, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// classifyFetchError maps a fetch failure onto a CollectionError kind.
func classifyFetchError(ctx context.Context, err error) string {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return scanner.ErrorKindHTTPStatus
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return scanner.ErrorKindTimeout
	default:
		return scanner.ErrorKindRequest
	}
}
