// Package xcom publishes posts to X through the v2 API.
package xcom

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/AzielCF/az-publisher/infrastructure/social"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
)

const (
	DefaultBaseURL = "https://api.x.com"
	statusURL      = "https://x.com/i/web/status/"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Publisher struct {
	baseURL string
	client  *http.Client
}

type Option func(*Publisher)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.client = c }
}

func New(cfg Config, opts ...Option) *Publisher {
	p := &Publisher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  social.NewHTTPClient(cfg.Timeout),
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Platform() platform.Platform {
	return platform.X
}

type createPostRequest struct {
	Text string `json:"text"`
}

type createPostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (p *Publisher) Publish(ctx context.Context, req platform.PublishRequest) (platform.PublishResult, error) {
	var resp createPostResponse
	_, err := social.DoJSON(ctx, p.client, social.Request{
		Platform: platform.X,
		Method:   http.MethodPost,
		URL:      p.baseURL + "/2/tweets",
		Token:    req.Token.Value,
		Body:     createPostRequest{Text: req.Content},
	}, &resp)
	if err != nil {
		return platform.PublishResult{}, err
	}
	if resp.Data.ID == "" {
		return platform.PublishResult{}, platform.NewError(platform.KindTransientNetwork, platform.X, "create post response carried no id")
	}
	return platform.PublishResult{ExternalID: resp.Data.ID, URL: PostURL(resp.Data.ID)}, nil
}

func PostURL(id string) string {
	return statusURL + id
}
