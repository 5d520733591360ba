// Package forum implements the forum client (C2): it fetches posts from
// named forum channels in hot/new/top modes via an OAuth2-authenticated API.
package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/model"
)

const (
	defaultBaseURL  = "https://oauth.reddit.com"
	defaultTokenURL = "https://www.reddit.com/api/v1/access_token"
)

// Client fetches posts from forum channels via a pre-provisioned
// client-credentials OAuth2 grant (spec §4.2: "Authentication uses
// pre-provisioned credentials").
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New builds a Client. requestsPerMinute bounds the forum's rate budget;
// calls block (via the limiter) until capacity is available rather than
// failing outright, per spec §4.2.
func New(ctx context.Context, clientID, clientSecret, userAgent string, requestsPerMinute int, logger *slog.Logger) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: forum client credentials required", errs.ErrForumAuth)
	}

	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     defaultTokenURL,
	}

	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	return &Client{
		httpClient: cfg.Client(ctx),
		baseURL:    defaultBaseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		logger:     logger,
	}, nil
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data postData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID             string  `json:"id"`
	Subreddit      string  `json:"subreddit"`
	Title          string  `json:"title"`
	Selftext       string  `json:"selftext"`
	URL            string  `json:"url"`
	Score          int     `json:"score"`
	NumComments    int     `json:"num_comments"`
	LinkFlairText  string  `json:"link_flair_text"`
	CreatedUTC     float64 `json:"created_utc"`
}

// FetchHot returns hot posts from each channel, flattened in order.
func (c *Client) FetchHot(ctx context.Context, channels []string, limit int) ([]model.ForumPost, error) {
	return c.fetchSorted(ctx, channels, "hot", "", limit)
}

// FetchNew returns new posts from each channel, flattened in order.
func (c *Client) FetchNew(ctx context.Context, channels []string, limit int) ([]model.ForumPost, error) {
	return c.fetchSorted(ctx, channels, "new", "", limit)
}

// FetchTop returns top posts from each channel within timeFilter
// ("hour"|"day"|"week"|"month"|"year"|"all"), flattened in order.
func (c *Client) FetchTop(ctx context.Context, channels []string, timeFilter string, limit int) ([]model.ForumPost, error) {
	return c.fetchSorted(ctx, channels, "top", timeFilter, limit)
}

// fetchSorted walks channels, fetching one sort mode from each; a failure
// on one channel is logged and skipped so the remaining channels still
// contribute posts (mirrors the original's per-subreddit try/continue).
func (c *Client) fetchSorted(ctx context.Context, channels []string, sort, timeFilter string, limit int) ([]model.ForumPost, error) {
	var posts []model.ForumPost
	now := time.Now().UTC()

	for _, channel := range channels {
		items, err := c.fetchChannel(ctx, channel, sort, timeFilter, limit)
		if err != nil {
			c.logger.Warn("skipping channel after fetch error", "channel", channel, "sort", sort, "error", err)
			continue
		}
		for _, item := range items {
			posts = append(posts, toForumPost(item, channel, now))
		}
	}

	return posts, nil
}

func (c *Client) fetchChannel(ctx context.Context, channel, sort, timeFilter string, limit int) ([]postData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrForumRateLimited, err)
	}

	u := fmt.Sprintf("%s/r/%s/%s", c.baseURL, url.PathEscape(channel), sort)
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if timeFilter != "" {
		q.Set("t", timeFilter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forum request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", errs.ErrForumAuth, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", errs.ErrForumRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forum request: unexpected status %d", resp.StatusCode)
	}

	var listing listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("forum response decode: %w", err)
	}

	out := make([]postData, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		out = append(out, child.Data)
	}
	return out, nil
}

func toForumPost(d postData, channel string, fetchedAt time.Time) model.ForumPost {
	var body, urlField, flair *string
	if d.Selftext != "" {
		body = &d.Selftext
	}
	if d.URL != "" {
		urlField = &d.URL
	}
	if d.LinkFlairText != "" {
		flair = &d.LinkFlairText
	}

	sub := d.Subreddit
	if sub == "" {
		sub = channel
	}

	return model.ForumPost{
		ExternalID:  d.ID,
		Channel:     sub,
		Title:       d.Title,
		Body:        body,
		URL:         urlField,
		Score:       d.Score,
		NumComments: d.NumComments,
		Flair:       flair,
		Timestamp:   time.Unix(int64(d.CreatedUTC), 0).UTC(),
		FetchedAt:   fetchedAt,
	}
}
