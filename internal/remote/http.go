package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/deltasync/internal/version"
)

const changesPath = "/changes"

// HTTPConfig points an HTTPSource at a changes API.
type HTTPConfig struct {
	BaseURL  string        `json:"base_url" mapstructure:"base_url"`
	Token    string        `json:"token,omitempty" mapstructure:"token"`
	PageSize int           `json:"page_size,omitempty" mapstructure:"page_size"`
	Timeout  time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`
	Retries  int           `json:"retries,omitempty" mapstructure:"retries"`
}

func (c *HTTPConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("http remote: base_url is required")
	}
	if c.PageSize < 0 {
		return fmt.Errorf("http remote: invalid page_size %d", c.PageSize)
	}
	if c.Retries < 0 {
		return fmt.Errorf("http remote: invalid retries %d", c.Retries)
	}
	return nil
}

// HTTPSource reads remote changes from a JSON changes feed:
//
//	GET {base}/changes?cursor=..&page_token=..&page_size=..
type HTTPSource struct {
	client   *req.Client
	pageSize int
}

func NewHTTPSource(cfg *HTTPConfig) (*HTTPSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := req.C().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetUserAgent(version.AppName+"/"+version.Version).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		SetCommonErrorResult(&APIError{}).
		SetCommonRetryCount(cfg.Retries).
		SetCommonRetryBackoffInterval(250*time.Millisecond, 5*time.Second).
		AddCommonRetryCondition(func(resp *req.Response, err error) bool {
			return err != nil || (resp.Response != nil && resp.StatusCode >= 500)
		})
	if cfg.Token != "" {
		client.SetCommonBearerAuthToken(cfg.Token)
	}

	return &HTTPSource{client: client, pageSize: cfg.PageSize}, nil
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Changes(ctx context.Context, cursor, pageToken string) (*ChangesPage, error) {
	var page ChangesPage

	r := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&page)
	if cursor != "" {
		r.SetQueryParam("cursor", cursor)
	}
	if pageToken != "" {
		r.SetQueryParam("page_token", pageToken)
	}
	if s.pageSize > 0 {
		r.SetQueryParam("page_size", strconv.Itoa(s.pageSize))
	}

	res, err := r.Get(changesPath)
	if err := handleAPIError(res, err, "get changes"); err != nil {
		return nil, err
	}

	slog.Debug("remote changes page", "source", s.Name(), "entries", len(page.Entries), "next", page.NextPageToken != "")
	return &page, nil
}
