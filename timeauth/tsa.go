package timeauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/common"
)

// Timestamp authority replies larger than this are rejected.
const maxTSAResponseBytes = 1 << 20

// RequestTimestampToken posts hash to each timestamp authority in
// turn and returns the URL and body of the first 2xx response.
//
// The request body is the hex digest itself, not an RFC 3161
// TimeStampReq. The response is kept as proof of submission only.
func (c *Client) RequestTimestampToken(ctx context.Context, hash string) (string, []byte, error) {
	var lastErr error
	for _, tsaURL := range c.TSAURLs {
		if err := ctx.Err(); err != nil {
			return "", nil, common.NewError(common.ErrNoTimestampAuthority,
				"Timestamp request cancelled", err, false)
		}
		body, err := c.requestToken(ctx, tsaURL, hash)
		if err == nil {
			c.Logger.Infof("Got %d byte timestamp token from %s", len(body), tsaURL)
			return tsaURL, body, nil
		}
		c.Logger.Warningf("Timestamp authority %s failed: %v", tsaURL, err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no timestamp authorities configured")
	}
	return "", nil, common.NewError(common.ErrNoTimestampAuthority,
		"No timestamp authority available", lastErr, false)
}

func (c *Client) requestToken(ctx context.Context, tsaURL, hash string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.TSATimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, tsaURL, strings.NewReader(hash))
	if err != nil {
		return nil, common.NewError(common.ErrMisuse,
			fmt.Sprintf("Invalid timestamp authority URL %s", tsaURL), err, false)
	}
	req.Header.Set("Content-Type", constants.TimestampQueryMime)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, common.NewError(common.ErrTimeout,
				fmt.Sprintf("Timestamp authority %s did not answer in time", tsaURL), err, false)
		}
		return nil, common.NewHttpError("Timestamp request failed", err, http.MethodPost, tsaURL, 0)
	}
	defer resp.Body.Close()

	// Read the body even on failure so the connection can be reused.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTSAResponseBytes+1))
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, common.NewError(common.ErrTimeout,
				fmt.Sprintf("Timestamp authority %s timed out sending its response", tsaURL), err, false)
		}
		return nil, common.NewHttpError("Error reading timestamp response", err, http.MethodPost, tsaURL, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, common.NewHttpError(
			fmt.Sprintf("Timestamp authority returned status %d", resp.StatusCode),
			nil, http.MethodPost, tsaURL, resp.StatusCode)
	}
	if len(body) > maxTSAResponseBytes {
		return nil, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Timestamp response from %s exceeds %d bytes", tsaURL, maxTSAResponseBytes), nil, false)
	}
	return body, nil
}
