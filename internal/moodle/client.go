// Package moodle implements the REST client for the upstream Moodle
// web-service endpoint and typed wrappers for the functions this
// application consumes.
package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/CCU-Computing/490-project-mycalendar/internal/observability"
)

const restFormat = "json"

// Params carries function-specific request parameters. Values may be
// scalars or slices; slices serialize using Moodle's indexed-array
// encoding (key[0]=v0&key[1]=v1).
type Params map[string]any

// Client issues GET requests against a single Moodle REST endpoint.
// It is stateless and safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client. The timeout bounds every upstream call;
// an expired deadline surfaces as a *TransportError.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// call executes one web-service function and returns the raw JSON body.
func (c *Client) call(ctx context.Context, token, wsfunction string, params Params) (json.RawMessage, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &ConfigurationError{Field: "token"}
	}
	if strings.TrimSpace(wsfunction) == "" {
		return nil, &ConfigurationError{Field: "wsfunction"}
	}

	values := url.Values{}
	values.Set("wstoken", token)
	values.Set("moodlewsrestformat", restFormat)
	values.Set("wsfunction", wsfunction)
	if err := encodeParams(values, params); err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := c.do(ctx, values)
	observability.RecordUpstreamCall(wsfunction, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}

	// Moodle reports logical failures inside a 200 body.
	var marker struct {
		Exception string `json:"exception"`
		ErrorCode string `json:"errorcode"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &marker); err == nil && marker.Exception != "" {
		return nil, &UpstreamError{Message: marker.Message, Code: marker.ErrorCode}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func encodeParams(values url.Values, params Params) error {
	for key, raw := range params {
		switch v := raw.(type) {
		case nil:
			continue
		case string:
			values.Set(key, v)
		case int:
			values.Set(key, strconv.Itoa(v))
		case int64:
			values.Set(key, strconv.FormatInt(v, 10))
		case []int64:
			for i, item := range v {
				values.Set(fmt.Sprintf("%s[%d]", key, i), strconv.FormatInt(item, 10))
			}
		case []string:
			for i, item := range v {
				values.Set(fmt.Sprintf("%s[%d]", key, i), item)
			}
		default:
			return &ConfigurationError{Field: "parameter " + key}
		}
	}
	return nil
}
