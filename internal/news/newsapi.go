// Package news supplies market headlines: the NewsAPI search endpoint, a
// site scraper, and a TTL cache in front of either.
package news

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signal-trader/internal/api"
	"signal-trader/internal/interfaces"
)

const newsAPIBaseURL = "https://newsapi.org"

// NewsAPI searches newsapi.org's everything endpoint.
type NewsAPI struct {
	key    string
	client *api.Client
	retry  *api.RetryConfig
}

var _ interfaces.HeadlineSource = (*NewsAPI)(nil)

func NewNewsAPI(key string, opts ...api.ClientOption) (*NewsAPI, error) {
	if key == "" {
		return nil, errors.New("NEWS_API_KEY missing")
	}
	opts = append([]api.ClientOption{api.WithBaseURL(newsAPIBaseURL), api.WithTimeout(15 * time.Second)}, opts...)
	return &NewsAPI{
		key:    key,
		client: api.NewClient(opts...),
		retry:  &api.RetryConfig{MaxAttempts: 2, InitialWait: 500 * time.Millisecond, MaxWait: 2 * time.Second},
	}, nil
}

type everythingResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title string `json:"title"`
	} `json:"articles"`
}

// Headlines returns up to limit of the newest English titles matching query.
func (n *NewsAPI) Headlines(ctx context.Context, query string, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(limit))

	req := api.NewRequest("GET", "/v2/everything?"+q.Encode()).
		WithContext(ctx).
		WithHeader("X-Api-Key", n.key)
	resp, err := n.client.DoWithRetry(req, n.retry)
	if err != nil {
		return nil, err
	}

	var r everythingResponse
	if err := resp.ParseJSON(&r); err != nil {
		return nil, err
	}
	if r.Status != "ok" {
		return nil, errors.New("newsapi: " + r.Code + ": " + r.Message)
	}

	out := make([]string, 0, len(r.Articles))
	for _, a := range r.Articles {
		// removed articles come back as "[Removed]"
		if t := strings.TrimSpace(a.Title); t != "" && t != "[Removed]" {
			out = append(out, t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
