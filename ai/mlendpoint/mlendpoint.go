// Package mlendpoint backs ai.MLEndpoint with a plain HTTP POST to a
// configurable black-box classifier, built on net/http directly (see
// DESIGN.md).
package mlendpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	aiport "github.com/crowdtask-platform/engine/ai"
	"github.com/crowdtask-platform/engine/common"
)

// Client posts {taskType, blobKey, answer} to url and expects
// {approved, confidence, reason} back.
type Client struct {
	url string
	client *http.Client
}

func New(url string) *Client {
	return &Client{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

type request struct {
	TaskType string `json:"taskType"`
	BlobKey string `json:"blobKey"`
	Answer string `json:"answer"`
}

type response struct {
	Approved bool `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reason string `json:"reason"`
}

func (c *Client) Classify(ctx context.Context, taskType, blobKey, answer string) (*aiport.MLResult, error) {
	body, err := json.Marshal(request{TaskType: taskType, BlobKey: blobKey, Answer: answer})
	if err != nil {
		return nil, common.Wrap(common.TransientExternal, err, "marshal ml request failed")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, common.Wrap(common.TransientExternal, err, "build ml request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, common.Wrap(common.TransientExternal, err, "ml endpoint call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, common.Newf(common.TransientExternal, "ml endpoint returned status %d", resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, common.Wrap(common.TransientExternal, err, "decode ml response failed")
	}
	return &aiport.MLResult{Approved: out.Approved, Confidence: out.Confidence, Reason: out.Reason}, nil
}

var _ aiport.MLEndpoint = (*Client)(nil)
