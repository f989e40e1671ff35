package timeauth

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/common"
)

// GetVerifiedTime asks each NTP server in turn for the current time
// and returns the first answer, along with the server that gave it.
// A server that fails for any reason is skipped, never retried.
func (c *Client) GetVerifiedTime(ctx context.Context) (time.Time, string, error) {
	var lastErr error
	for _, server := range c.NTPServers {
		if err := ctx.Err(); err != nil {
			return time.Time{}, "", common.NewError(common.ErrTimeUnavailable,
				"Time verification cancelled", err, true)
		}
		ntpTime, err := QueryNTP(ctx, server, c.NTPTimeout)
		if err == nil {
			c.Logger.Infof("Got verified time %s from NTP server %s", ntpTime.Format(time.RFC3339), server)
			return ntpTime, server, nil
		}
		c.Logger.Warningf("NTP server %s failed: %v", server, err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no NTP servers configured")
	}
	return time.Time{}, "", common.NewError(common.ErrTimeUnavailable,
		"All NTP servers are unavailable", lastErr, true)
}

// QueryNTP sends a single client request to server and parses the
// transmit timestamp from its reply. Server may be "host" or
// "host:port". The exchange is abandoned when timeout expires or
// ctx is cancelled, whichever comes first.
func QueryNTP(ctx context.Context, server string, timeout time.Duration) (time.Time, error) {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	dialer := &net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "udp", ntpAddress(server))
	if err != nil {
		return time.Time{}, classifyNetError(ctx, server, err)
	}
	defer conn.Close()
	if err = conn.SetDeadline(deadline); err != nil {
		return time.Time{}, common.NewError(common.ErrTimeUnavailable,
			fmt.Sprintf("Cannot set deadline on connection to %s", server), err, false)
	}

	// Unblock the read promptly if the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	request := make([]byte, constants.NTPPacketSize)
	request[0] = constants.NTPRequestHeader
	if _, err = conn.Write(request); err != nil {
		return time.Time{}, classifyNetError(ctx, server, err)
	}
	reply := make([]byte, 2*constants.NTPPacketSize)
	n, err := conn.Read(reply)
	if err != nil {
		return time.Time{}, classifyNetError(ctx, server, err)
	}
	return ParseNTPResponse(reply[:n])
}

// ParseNTPResponse reads the whole seconds of the transmit timestamp
// from an NTP reply. The reply must be at least 48 bytes. A transmit
// timestamp of zero, which unsynchronized servers send, is rejected as
// malformed. Any other value T + 2208988800 decodes to Unix time T.
func ParseNTPResponse(reply []byte) (time.Time, error) {
	if len(reply) < constants.NTPPacketSize {
		return time.Time{}, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("NTP reply is %d bytes, expected at least %d", len(reply), constants.NTPPacketSize),
			nil, false)
	}
	offset := constants.NTPTransmitOffset
	seconds := binary.BigEndian.Uint32(reply[offset : offset+4])
	if seconds == 0 {
		return time.Time{}, common.NewError(common.ErrMalformedResponse,
			"NTP reply has an empty transmit timestamp", nil, false)
	}
	return time.Unix(int64(seconds)-constants.NTPEpochOffset, 0).UTC(), nil
}

// ntpAddress adds the default NTP port when server has none.
func ntpAddress(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, constants.DefaultNTPPort)
}

func classifyNetError(ctx context.Context, server string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return common.NewError(common.ErrTimeUnavailable,
			fmt.Sprintf("Query to %s cancelled", server), ctxErr, false)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return common.NewError(common.ErrTimeout,
			fmt.Sprintf("NTP server %s did not answer in time", server), err, false)
	}
	return common.NewError(common.ErrTimeUnavailable,
		fmt.Sprintf("Cannot reach NTP server %s", server), err, false)
}
