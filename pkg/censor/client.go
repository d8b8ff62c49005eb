package censor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
)

var ErrUnexpectedStatus = fmt.Errorf("unexpected status from censorship service")

// CheckRequest is the body accepted by the /check endpoint.
type CheckRequest struct {
	Content string `json:"content"`
}

// Client asks a remote censorship service whether text is acceptable.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Check posts text to {baseURL}/check. The service answers 200 for clean text and 422 for
// banned text; any other answer is an error.
func (c *Client) Check(ctx context.Context, text string) (bool, error) {
	reqID := logger.RequestID(ctx)
	sID := logger.Shorten(reqID)

	b, err := json.Marshal(CheckRequest{Content: text})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/check", bytes.NewReader(b))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Errorf("[censorClient][%s] request failed: %v", sID, err)
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusUnprocessableEntity:
		log.Debugf("[censorClient][%s] content rejected", sID)
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}
