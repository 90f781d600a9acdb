package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RequestFunc builds a fresh request for each connection attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// HTTPOpener returns an Opener that performs the request built by newReq and
// hands back the response body of a 2xx reply. Other statuses become a
// *StatusError so the router can decide whether to retry.
func HTTPOpener(client *http.Client, newReq RequestFunc) Opener {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (io.ReadCloser, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, Permanent(fmt.Errorf("failed to build stream request: %w", err))
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("stream request failed: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return resp.Body, nil
	}
}
