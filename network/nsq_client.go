package network

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/evidence"
)

type NSQClient struct {
	URL string
}

// NSQClientInterface lets tests substitute a fake queue.
type NSQClientInterface interface {
	Enqueue(topic string, data []byte) error
	EnqueueCapture(msg *evidence.CaptureMessage) error
}

// NewNSQClient returns a new NSQ client that posts to the nsqd HTTP
// address at url, which usually ends with :4151. This client can only
// queue messages. The evidence worker does the reading.
func NewNSQClient(url string) *NSQClient {
	return &NSQClient{URL: url}
}

// EnqueueCapture validates msg and posts it to the evidence topic.
func (client *NSQClient) EnqueueCapture(msg *evidence.CaptureMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := msg.ToJSON()
	if err != nil {
		return err
	}
	return client.Enqueue(constants.TopicEvidence, data)
}

// Enqueue posts data to the specified NSQ topic.
func (client *NSQClient) Enqueue(topic string, data []byte) error {
	url := fmt.Sprintf("%s/pub?topic=%s", client.URL, topic)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("Nsqd returned an error when queuing data: %v", err)
	}
	if resp == nil {
		return fmt.Errorf("No response from nsqd at '%s'. Is it running?", url)
	}

	// nsqd sends a simple OK. We have to read the response body,
	// or the connection will hang open forever.
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyText := "[no response body]"
		if len(body) > 0 {
			bodyText = string(body)
		}
		return fmt.Errorf("nsqd returned status code %d when attempting to queue data. "+
			"Response body: %s", resp.StatusCode, bodyText)
	}
	return nil
}
