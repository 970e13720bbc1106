package linkedin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/AzielCF/az-publisher/infrastructure/social"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL    = "https://api.linkedin.com"
	DefaultAPIVersion = "202506"
	postURLPrefix     = "https://www.linkedin.com/feed/update/"
)

type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

// Publisher posts text to a member's feed through the LinkedIn Posts API.
type Publisher struct {
	baseURL    string
	apiVersion string
	client     *http.Client
}

type Option func(*Publisher)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.client = c }
}

func New(cfg Config, opts ...Option) *Publisher {
	p := &Publisher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		client:     social.NewHTTPClient(cfg.Timeout),
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}
	if p.apiVersion == "" {
		p.apiVersion = DefaultAPIVersion
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Platform() platform.Platform {
	return platform.LinkedIn
}

type distribution struct {
	FeedDistribution       string   `json:"feedDistribution"`
	TargetEntities         []string `json:"targetEntities"`
	ThirdPartyDistribution []string `json:"thirdPartyDistributionChannels"`
}

type postRequest struct {
	Author                    string       `json:"author"`
	Commentary                string       `json:"commentary"`
	Visibility                string       `json:"visibility"`
	Distribution              distribution `json:"distribution"`
	LifecycleState            string       `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool         `json:"isReshareDisabledByAuthor"`
}

type userInfo struct {
	Sub string `json:"sub"`
}

func (p *Publisher) Publish(ctx context.Context, req platform.PublishRequest) (platform.PublishResult, error) {
	author, err := p.author(ctx, req.Token)
	if err != nil {
		return platform.PublishResult{}, err
	}

	hdr, err := social.DoJSON(ctx, p.client, social.Request{
		Platform: platform.LinkedIn,
		Method:   http.MethodPost,
		URL:      p.baseURL + "/rest/posts",
		Token:    req.Token.Value,
		Headers: map[string]string{
			"LinkedIn-Version":          p.apiVersion,
			"X-Restli-Protocol-Version": "2.0.0",
		},
		Body: postRequest{
			Author:     author,
			Commentary: EscapeCommentary(req.Content),
			Visibility: "PUBLIC",
			Distribution: distribution{
				FeedDistribution:       "MAIN_FEED",
				TargetEntities:         []string{},
				ThirdPartyDistribution: []string{},
			},
			LifecycleState: "PUBLISHED",
		},
	}, nil)
	if err != nil {
		return platform.PublishResult{}, err
	}

	id := hdr.Get("X-Restli-Id")
	if id == "" {
		id = hdr.Get("X-LinkedIn-Id")
	}
	if id == "" {
		logrus.Warnf("[LINKEDIN] post created without an id header for entry %s", req.IdempotencyKey)
		return platform.PublishResult{}, nil
	}
	return platform.PublishResult{ExternalID: id, URL: PostURL(id)}, nil
}

// author resolves the member URN, asking the OpenID userinfo endpoint when the
// credential does not carry the member id.
func (p *Publisher) author(ctx context.Context, token platform.AccessToken) (string, error) {
	id := token.AccountID
	if id == "" {
		var info userInfo
		_, err := social.DoJSON(ctx, p.client, social.Request{
			Platform: platform.LinkedIn,
			Method:   http.MethodGet,
			URL:      p.baseURL + "/v2/userinfo",
			Token:    token.Value,
		}, &info)
		if err != nil {
			return "", err
		}
		if info.Sub == "" {
			return "", platform.NewError(platform.KindUnauthorized, platform.LinkedIn, "userinfo returned no member id")
		}
		id = info.Sub
	}
	if strings.HasPrefix(id, "urn:li:") {
		return id, nil
	}
	return "urn:li:person:" + id, nil
}

func PostURL(urn string) string {
	return postURLPrefix + urn
}

var commentaryEscaper = strings.NewReplacer(
	`\`, `\\`, `|`, `\|`, `{`, `\{`, `}`, `\}`, `@`, `\@`, `[`, `\[`, `]`, `\]`,
	`(`, `\(`, `)`, `\)`, `<`, `\<`, `>`, `\>`, `#`, `\#`, `*`, `\*`, `_`, `\_`, `~`, `\~`,
)

// EscapeCommentary escapes the reserved characters of LinkedIn's little text format
// so the text is posted literally.
func EscapeCommentary(s string) string {
	return commentaryEscaper.Replace(s)
}
