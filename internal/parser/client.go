package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/courierdesk/courierdesk/internal/model"
)

// Client talks to the document-understanding HTTP service.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
}

// NewClientFromEnv builds a client from COURIERDESK_AI_* environment
// variables. The API key is required.
func NewClientFromEnv() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("COURIERDESK_AI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.courierdesk.app"
	}
	apiKey := strings.TrimSpace(os.Getenv("COURIERDESK_AI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("COURIERDESK_AI_API_KEY is empty")
	}
	timeout := 120 * time.Second
	if v := strings.TrimSpace(os.Getenv("COURIERDESK_AI_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			timeout = d
		}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: "X-API-Key",
		http:      &http.Client{Timeout: timeout},
	}, nil
}

type parseRequest struct {
	Pages          []model.Page `json:"pages"`
	Instruction    string       `json:"instruction"`
	HybridStrategy bool         `json:"hybridStrategy"`
}

// Parse submits one page set for extraction. onProgress, when non-nil,
// receives coarse status updates before and after the request.
func (c *Client) Parse(ctx context.Context, pages []model.Page, instruction string, hybrid bool, onProgress func(string)) (*Result, error) {
	if len(pages) == 0 {
		return nil, errors.New("no pages to parse")
	}

	progress := func(msg string) {
		if onProgress != nil {
			onProgress(msg)
		}
	}

	body, err := json.Marshal(parseRequest{
		Pages:          pages,
		Instruction:    instruction,
		HybridStrategy: hybrid,
	})
	if err != nil {
		return nil, err
	}

	strategy := "default"
	if hybrid {
		strategy = "hybrid"
	}
	progress(fmt.Sprintf("Uploading %d page(s) (%s strategy)...", len(pages), strategy))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/parse", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("parse service error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode parse response: %w", err)
	}
	progress("Analysis complete.")
	return &result, nil
}
