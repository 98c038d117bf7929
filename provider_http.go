package provbatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// defaultDialTimeout is the default timeout for network dial operations.
const defaultDialTimeout = 5 * time.Second

// HTTPTimeouts configures timeout values for provisioning API requests.
// Zero values indicate no timeout (except where Go stdlib provides defaults).
type HTTPTimeouts struct {
	// Total is the overall timeout for the entire request, including
	// connection establishment and reading the response body. Maps to
	// http.Client.Timeout. Zero means no timeout.
	Total time.Duration

	// ResponseHeader is the timeout waiting for the server's response
	// headers after the request has been written. Maps to
	// http.Transport.ResponseHeaderTimeout. Zero means no timeout.
	ResponseHeader time.Duration

	// IdleConn is the maximum duration an idle connection will remain in the
	// connection pool. Maps to http.Transport.IdleConnTimeout.
	IdleConn time.Duration

	// Dial is the maximum duration waiting for a network dial to complete.
	// Applied to net.Dialer.Timeout. Zero uses a default of 5 seconds.
	// Negative values are invalid.
	Dial time.Duration
}

// Validate checks that the HTTPTimeouts configuration is valid.
func (t HTTPTimeouts) Validate() error {
	if t.Dial < 0 {
		return errors.New("HTTPTimeouts.Dial cannot be negative")
	}
	return nil
}

// HTTPProvider performs provisioning operations against a remote API by
// POSTing JSON operation requests. The raw response body is returned as the
// captured output so the classifier can inspect embedded error payloads even
// on 2xx responses.
type HTTPProvider struct {
	// BaseURL is the root of the provisioning API, without a trailing slash.
	BaseURL string

	// Header is attached to every request. Content-Type is always JSON.
	Header http.Header

	// Timeouts bound the transport layer.
	Timeouts HTTPTimeouts

	client *http.Client
}

// operationRequest is the JSON body of a provisioning call.
type operationRequest struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// Validate checks the configuration and builds the underlying HTTP client.
func (p *HTTPProvider) Validate() error {
	if p.BaseURL == "" {
		return errors.Join(ErrInvalidConfig, errors.New("HTTPProvider.BaseURL is empty"))
	}
	if err := p.Timeouts.Validate(); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	if p.Header == nil {
		p.Header = make(http.Header)
	}

	dialTimeout := p.Timeouts.Dial
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = dialer.DialContext
	tr.ResponseHeaderTimeout = p.Timeouts.ResponseHeader
	if p.Timeouts.IdleConn > 0 {
		tr.IdleConnTimeout = p.Timeouts.IdleConn
	}

	p.client = &http.Client{
		Transport: tr,
		Timeout:   p.Timeouts.Total,
	}
	return nil
}

// CreateResource posts a create operation for the given ID.
func (p *HTTPProvider) CreateResource(ctx context.Context, id string) (string, error) {
	return p.post(ctx, "create", id)
}

// EnableCapability posts an enable operation for the given ID.
func (p *HTTPProvider) EnableCapability(ctx context.Context, id string) (string, error) {
	return p.post(ctx, "enable", id)
}

// IssueCredential posts an issue operation for the given ID.
func (p *HTTPProvider) IssueCredential(ctx context.Context, id string) (string, error) {
	return p.post(ctx, "issue", id)
}

// DeleteResource posts a delete operation for the given ID.
func (p *HTTPProvider) DeleteResource(ctx context.Context, id string) (string, error) {
	return p.post(ctx, "delete", id)
}

// post sends one operation request and captures the response body.
func (p *HTTPProvider) post(ctx context.Context, op, id string) (string, error) {
	if p.client == nil {
		return "", errors.New("HTTPProvider used before Validate")
	}

	body, err := sonic.Marshal(operationRequest{Op: op, ID: id})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.BaseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	for key, values := range p.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return string(data), err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return string(data), fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return string(data), nil
}
