package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

type ApiConnectionDetails struct {
	BackendUrl string
}

// Response is the envelope every mutating endpoint answers with. On
// submission File carries the new job id, on pairing it carries the
// challenge.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

// Client calls a vidfetch backend over its HTTP api.
type Client struct {
	baseUrl    string
	httpClient *http.Client
}

func New(apiConnectionDetails *ApiConnectionDetails) *Client {
	return &Client{
		baseUrl:    strings.TrimSuffix(apiConnectionDetails.BackendUrl, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit queues a new download and returns its job id.
func (c *Client) Submit(ctx context.Context, request *domain.JobRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", errors.WithStack(err)
	}
	response, err := c.post(ctx, "/url", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return response.File, nil
}

// Queue returns every job the backend currently tracks, in submission order.
func (c *Client) Queue(ctx context.Context) ([]domain.JobInfo, error) {
	var envelope struct {
		Queue []domain.JobInfo `json:"queue"`
	}
	if err := c.getJson(ctx, "/queue", &envelope); err != nil {
		return nil, err
	}
	return envelope.Queue, nil
}

// Cancel requests cancellation of one job.
func (c *Client) Cancel(ctx context.Context, downloadId string) (string, error) {
	response, err := c.post(ctx, "/cancel/"+url.PathEscape(downloadId), nil)
	if err != nil {
		return "", err
	}
	return response.Message, nil
}

// ClearFinished drops every terminal job from the backend's queue view.
func (c *Client) ClearFinished(ctx context.Context) (string, error) {
	response, err := c.post(ctx, "/queue/clear", nil)
	if err != nil {
		return "", err
	}
	return response.Message, nil
}

// ListArtifacts returns the downloaded files, newest first.
func (c *Client) ListArtifacts(ctx context.Context) ([]string, error) {
	var files []string
	if err := c.getJson(ctx, "/list", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) post(ctx context.Context, apiPath string, body io.Reader) (*Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+apiPath, body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	httpResponse, err := c.httpClient.Do(request)
	if err != nil {
		return nil, errors.Wrapf(err, "error calling %s", apiPath)
	}
	defer httpResponse.Body.Close()

	// Errors arrive in the same envelope as successes, with the status
	// code carrying the category.
	response := &Response{}
	if err := json.NewDecoder(httpResponse.Body).Decode(response); err != nil {
		return nil, errors.Errorf("%s returned unexpected response: %s", apiPath, httpResponse.Status)
	}
	if !response.Success {
		return nil, errors.Errorf("backend rejected request: %s", response.Message)
	}
	return response, nil
}

func (c *Client) getJson(ctx context.Context, apiPath string, out interface{}) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+apiPath, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	httpResponse, err := c.httpClient.Do(request)
	if err != nil {
		return errors.Wrapf(err, "error calling %s", apiPath)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return errors.Errorf("%s returned %s", apiPath, httpResponse.Status)
	}
	if err := json.NewDecoder(httpResponse.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "error decoding response from %s", apiPath)
	}
	return nil
}
