package timeauth_test

import (
	"testing"
	"time"

	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/timeauth"
	"github.com/APTrust/evidence-services/util/logger"
	"github.com/APTrust/evidence-services/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientFromConfig(t *testing.T) {
	config, err := common.LoadConfig(testutil.PathToConfigDir(), "test")
	require.Nil(t, err)
	client := timeauth.NewClientFromConfig(config, logger.DiscardLogger("timeauth_test"))
	assert.Equal(t, config.NTPServers, client.NTPServers)
	assert.Equal(t, config.TSAURLs, client.TSAURLs)
	assert.Equal(t, 5*time.Second, client.NTPTimeout)
	assert.Equal(t, 10*time.Second, client.TSATimeout)
	assert.NotNil(t, client.HTTPClient)

	// Client keeps its own copy of the server list.
	config.NTPServers[0] = "changed.example.com"
	assert.NotEqual(t, "changed.example.com", client.NTPServers[0])
}
