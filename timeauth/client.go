package timeauth

import (
	"net/http"
	"time"

	"github.com/APTrust/evidence-services/models/common"
	"github.com/op/go-logging"
)

// Client gets verified time from NTP servers and best-effort
// timestamp tokens from timestamp authorities. Servers and
// authorities are tried in order until one succeeds.
type Client struct {
	HTTPClient *http.Client
	Logger     *logging.Logger
	NTPServers []string
	NTPTimeout time.Duration
	TSATimeout time.Duration
	TSAURLs    []string
}

// NewClient returns a client for the given servers and authorities.
// Each timeout is a hard deadline for a single server or authority,
// not for the whole list.
func NewClient(ntpServers, tsaURLs []string, ntpTimeout, tsaTimeout time.Duration, logger *logging.Logger) *Client {
	return &Client{
		HTTPClient: &http.Client{},
		Logger:     logger,
		NTPServers: append([]string(nil), ntpServers...),
		NTPTimeout: ntpTimeout,
		TSATimeout: tsaTimeout,
		TSAURLs:    append([]string(nil), tsaURLs...),
	}
}

// NewClientFromConfig returns a client using the servers,
// authorities and timeouts in config.
func NewClientFromConfig(config *common.Config, logger *logging.Logger) *Client {
	return NewClient(
		config.NTPServers,
		config.TSAURLs,
		config.NTPTimeout,
		config.TSATimeout,
		logger)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
