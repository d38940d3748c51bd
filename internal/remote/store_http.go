package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/imroc/req/v3"

	"github.com/snapbox/snapbox/internal/utils"
	"github.com/snapbox/snapbox/internal/version"
)

const (
	headerDeviceID = "X-Snapbox-Device-Id"

	v1Push = "/api/v1/mirror/push"
	v1Head = "/api/v1/mirror/head"
	v1Pull = "/api/v1/mirror/objects/{ref}"
)

var userAgent = fmt.Sprintf("%s/%s (%s; %s)", version.AppName, version.Version, runtime.GOOS, runtime.GOARCH)

type pushResponse struct {
	Ref Ref `json:"ref"`
}

type headResponse struct {
	Ref      Ref       `json:"ref"`
	PushedAt time.Time `json:"pushed_at"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("mirror api error: %s - %s", e.Code, e.Message)
}

// HTTPStore talks to a snapbox mirror server. The server owns head movement,
// so two clients pushing concurrently still see a single linear head.
type HTTPStore struct {
	client *req.Client
}

func NewHTTPStore(baseURL, token string) *HTTPStore {
	client := req.C().
		SetBaseURL(baseURL).
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(1*time.Second).
		SetUserAgent(userAgent).
		SetCommonHeader(headerDeviceID, utils.HWID).
		SetCommonErrorResult(&apiError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	if token != "" {
		client.SetCommonBearerAuthToken(token)
	}
	return &HTTPStore{client: client}
}

func (s *HTTPStore) Push(ctx context.Context, payload io.Reader) (Ref, error) {
	var result pushResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetContentType("application/gzip").
		SetBody(payload).
		SetSuccessResult(&result).
		Post(v1Push)
	if err := handleMirrorError(resp, err, "push"); err != nil {
		return "", err
	}
	if result.Ref == "" {
		return "", fmt.Errorf("push: server returned no ref")
	}
	return result.Ref, nil
}

func (s *HTTPStore) FetchHead(ctx context.Context) (Ref, error) {
	var result headResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&result).
		Get(v1Head)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return "", ErrNoRemoteHead
	}
	if err := handleMirrorError(resp, err, "fetch head"); err != nil {
		return "", err
	}
	return result.Ref, nil
}

func (s *HTTPStore) Pull(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("ref", string(ref)).
		DisableAutoReadResponse().
		Get(v1Pull)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("unknown remote ref %q", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", ref, err)
	}
	if resp.IsErrorState() {
		resp.Body.Close()
		return nil, fmt.Errorf("pull %s: http %d", ref, resp.StatusCode)
	}
	return resp.Body, nil
}

func handleMirrorError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("mirror %s: %w", operation, requestErr)
	}
	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*apiError); ok && apiErr.Code != "" {
			return fmt.Errorf("mirror %s: %w", operation, apiErr)
		}
		return fmt.Errorf("mirror %s: http %d", operation, resp.StatusCode)
	}
	return nil
}
