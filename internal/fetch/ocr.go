package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OcrClient invokes an external text-extraction service over HTTP: PDF bytes
// in, extracted text out. The pipeline owns only retry and artifact
// placement; the extraction itself lives behind this endpoint.
type OcrClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ OcrExtractor = (*OcrClient)(nil)

// NewOcrClient builds a client; a nil HTTP client gets a 2m timeout, since
// extraction of a long PDF is slow.
func NewOcrClient(endpoint, apiKey string, client *http.Client) *OcrClient {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &OcrClient{endpoint: endpoint, apiKey: apiKey, http: client}
}

// ExtractText submits PDF bytes and returns the extracted text.
func (c *OcrClient) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	if c.endpoint == "" {
		return "", Permanent("ocr", fmt.Errorf("ocr endpoint not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(pdf))
	if err != nil {
		return "", Permanent("ocr", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/pdf")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", Transient("ocr", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("ocr", resp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&result); err != nil {
		return "", Permanent("ocr", fmt.Errorf("decode response: %w", err))
	}
	if result.Text == "" {
		return "", Permanent("ocr", fmt.Errorf("extraction produced no text"))
	}
	return result.Text, nil
}
