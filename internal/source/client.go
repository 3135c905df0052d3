// Package source is a client for the remittance file service that exposes
// unviewed files over a query-string authenticated HTTP API.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds each API request.
const DefaultTimeout = 10 * time.Second

// Endpoints exposed by the service.
const (
	EndpointUnviewedFiles     = "GetUnviewedFiles"
	EndpointUnviewedERAMFiles = "GetUnviewedERAMFiles"
	EndpointFileByName        = "GetFileByName"
	EndpointPayerIDs          = "GetPayerIDs"
)

// Options configures a Client.
type Options struct {
	// BaseURL is prepended verbatim to endpoint names, so it normally ends
	// with a slash.
	BaseURL  string
	Username string
	Password string

	// Timeout defaults to DefaultTimeout. Ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the source API.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a Client. BaseURL, Username and Password are required.
func NewClient(opts Options) (*Client, error) {
	var missing []string
	if opts.BaseURL == "" {
		missing = append(missing, "base URL")
	}
	if opts.Username == "" {
		missing = append(missing, "username")
	}
	if opts.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("source client: missing %s", strings.Join(missing, ", "))
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  opts.BaseURL,
		username: opts.Username,
		password: opts.Password,
		http:     hc,
		logger:   logger,
	}, nil
}

// Get calls endpoint with params plus the account credentials and decodes
// the response.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if !q.Has("username") {
		q.Set("username", c.username)
	}
	if !q.Has("password") {
		q.Set("password", c.password)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", endpoint, err)
	}

	c.logger.Debug("calling source api", "endpoint", endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the password; report the endpoint only.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Code:     ErrCodeHTTPStatus,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("status code %d", resp.StatusCode),
		}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/xml" {
		return &Response{Body: body}, nil
	}

	res, err := decodeEnvelope(body)
	if err != nil {
		var ae *APIError
		if errors.As(err, &ae) {
			ae.Endpoint = endpoint
		}
		return nil, err
	}
	return res, nil
}

// ListFiles returns the file names listed by an unviewed-files endpoint.
func (c *Client) ListFiles(ctx context.Context, endpoint string) ([]string, error) {
	res, err := c.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if res.Tree == nil {
		return nil, &APIError{Code: ErrCodeMalformed, Endpoint: endpoint, Message: "expected an embedded file list"}
	}
	var names []string
	for _, n := range res.Tree.Find("fileList", "file") {
		if name := strings.TrimSpace(n.Text); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DownloadFile returns the payload of the named file.
func (c *Client) DownloadFile(ctx context.Context, name string) ([]byte, error) {
	res, err := c.Get(ctx, EndpointFileByName, url.Values{"filename": {name}})
	if err != nil {
		return nil, err
	}
	if res.Tree != nil {
		return nil, &APIError{Code: ErrCodeMalformed, Endpoint: EndpointFileByName, Message: "expected a file payload"}
	}
	return res.Body, nil
}

// Payer is one entry of the payer directory.
type Payer struct {
	Name    string `json:"name"`
	PayerID string `json:"payer_id"`
}

// PayerIDs returns the payer directory for a profession.
func (c *Client) PayerIDs(ctx context.Context, professionID string) ([]Payer, error) {
	res, err := c.Get(ctx, EndpointPayerIDs, url.Values{"professionID": {professionID}})
	if err != nil {
		return nil, err
	}
	if res.Tree == nil {
		return nil, &APIError{Code: ErrCodeMalformed, Endpoint: EndpointPayerIDs, Message: "expected an embedded payer list"}
	}
	var payers []Payer
	for _, n := range res.Tree.Find("Payers", "Payer") {
		payers = append(payers, Payer{Name: n.ChildText("Name"), PayerID: n.ChildText("PayerID")})
	}
	return payers, nil
}
