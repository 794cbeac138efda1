package kubernetes

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/pkg/retry"
)

// Client is the contract the kubernetes handlers call into. The concrete
// API surface stays behind this interface so tests and other transports can
// substitute it.
type Client interface {
	Scale(ctx context.Context, namespace, kind, name string, replicas int) error
	Delete(ctx context.Context, namespace, kind, name string) error
}

// resourcePaths maps a resource kind to its apps/v1 plural path segment.
var resourcePaths = map[string]string{
	KindDeployment:  "deployments",
	KindStatefulSet: "statefulsets",
	KindJob:         "jobs",
}

type httpClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a Client talking to the cluster API server at
// baseURL with a bearer token. TLS verification follows the default
// transport; insecure lets lab clusters with self-signed certs through.
func NewHTTPClient(baseURL, token string, insecure bool) Client {
	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

func (c *httpClient) Scale(ctx context.Context, namespace, kind, name string, replicas int) error {
	path, ok := resourcePaths[kind]
	if !ok {
		return &domain.UnknownResourceKindError{Kind: kind}
	}
	url := fmt.Sprintf("%s/apis/apps/v1/namespaces/%s/%s/%s/scale", c.baseURL, namespace, path, name)
	body := fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas)
	return c.do(ctx, http.MethodPatch, url, body, "application/merge-patch+json")
}

func (c *httpClient) Delete(ctx context.Context, namespace, kind, name string) error {
	group := "apis/apps/v1"
	if kind == KindJob {
		group = "apis/batch/v1"
	}
	path, ok := resourcePaths[kind]
	if !ok {
		return &domain.UnknownResourceKindError{Kind: kind}
	}
	url := fmt.Sprintf("%s/%s/namespaces/%s/%s/%s", c.baseURL, group, namespace, path, name)
	return c.do(ctx, http.MethodDelete, url, "", "")
}

// do issues one API call, retrying transient failures. Permanent HTTP
// errors surface as UpstreamError so classification buckets them as
// provider failures.
func (c *httpClient) do(ctx context.Context, method, url, body, contentType string) error {
	call := func() error {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s %s returned status %d", method, url, resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			// Client-side API errors do not improve on retry.
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &permanentError{fmt.Errorf("%s %s returned status %d: %s", method, url, resp.StatusCode, detail)}
		}
		return nil
	}

	var permanent error
	err := retry.Do(ctx, retry.Config{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}, func() error {
		callErr := call()
		var pe *permanentError
		if errors.As(callErr, &pe) {
			// Not worth another attempt; stop the retry loop.
			permanent = pe.err
			return nil
		}
		return callErr
	})
	if permanent != nil {
		return &domain.UpstreamError{Provider: Provider, Err: permanent}
	}
	if err != nil {
		return &domain.UpstreamError{Provider: Provider, Err: err}
	}
	return nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
