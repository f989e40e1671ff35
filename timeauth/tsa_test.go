package timeauth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/timeauth"
	"github.com/APTrust/evidence-services/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestTimestampToken(t *testing.T) {
	recorder := testutil.NewRequestRecorder(testutil.HttpStringResponder(nil, "token-bytes"))
	tsa := httptest.NewServer(recorder)
	defer tsa.Close()

	client := newClient(nil, []string{tsa.URL})
	url, body, err := client.RequestTimestampToken(context.Background(), testutil.ZeroSha256)
	require.Nil(t, err)
	assert.Equal(t, tsa.URL, url)
	assert.Equal(t, "token-bytes", string(body))

	requests := recorder.Requests()
	require.Equal(t, 1, len(requests))
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, "application/timestamp-query", requests[0].ContentType)
	assert.Equal(t, testutil.ZeroSha256, requests[0].Body)
}

func TestRequestTimestampTokenFallback(t *testing.T) {
	broken := httptest.NewServer(testutil.HttpStatusResponder(http.StatusInternalServerError, "oops"))
	defer broken.Close()
	slow := httptest.NewServer(testutil.HttpSlowResponder(5*time.Second, "too late"))
	defer slow.Close()
	good := httptest.NewServer(testutil.HttpStatusResponder(http.StatusCreated, "accepted"))
	defer good.Close()

	client := newClient(nil, []string{broken.URL, slow.URL, good.URL})
	start := time.Now()
	url, body, err := client.RequestTimestampToken(context.Background(), testutil.ZeroSha256)
	require.Nil(t, err)
	assert.Equal(t, good.URL, url)
	assert.Equal(t, "accepted", string(body))
	assert.True(t, time.Since(start) < 4*time.Second)
}

func TestRequestTimestampTokenAllFail(t *testing.T) {
	broken := httptest.NewServer(testutil.HttpStatusResponder(http.StatusBadRequest, "bad"))
	defer broken.Close()

	client := newClient(nil, []string{broken.URL, "http://127.0.0.1:1/tsa", "::not a url"})
	url, body, err := client.RequestTimestampToken(context.Background(), testutil.ZeroSha256)
	require.NotNil(t, err)
	assert.Equal(t, "", url)
	assert.Nil(t, body)
	assert.True(t, common.IsKind(err, common.ErrNoTimestampAuthority))

	client = newClient(nil, nil)
	_, _, err = client.RequestTimestampToken(context.Background(), testutil.ZeroSha256)
	assert.True(t, common.IsKind(err, common.ErrNoTimestampAuthority))
}

func TestRequestTimestampTokenCancelled(t *testing.T) {
	recorder := testutil.NewRequestRecorder(testutil.HttpStringResponder(nil, "token"))
	tsa := httptest.NewServer(recorder)
	defer tsa.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := newClient(nil, []string{tsa.URL})
	_, _, err := client.RequestTimestampToken(ctx, testutil.ZeroSha256)
	require.NotNil(t, err)
	assert.True(t, common.IsKind(err, common.ErrNoTimestampAuthority))
	assert.Empty(t, recorder.Requests())
}

func TestBuildTimestampProof(t *testing.T) {
	token := []byte("token")
	proof := timeauth.BuildTimestampProof(testutil.ZeroSha256, testutil.CaptureStart, ntpTime, "time.google.com", "http://tsa", token)
	token[0] = 'X'
	assert.Equal(t, testutil.ZeroSha256, proof.FileHash)
	assert.Equal(t, testutil.CaptureStart, proof.DeviceTimestamp)
	assert.Equal(t, ntpTime, proof.NTPTimestamp)
	assert.Equal(t, "time.google.com", proof.NTPServer)
	assert.Equal(t, "http://tsa", proof.TSAURL)
	assert.Equal(t, "token", string(proof.TSAResponse))
	assert.Equal(t, 7.0, proof.TimeDifferenceSeconds())

	proof = timeauth.BuildTimestampProof(testutil.ZeroSha256, testutil.CaptureStart, ntpTime, "time.google.com", "", nil)
	assert.Nil(t, proof.TSAResponse)
	assert.False(t, proof.HasTSAToken())
}
