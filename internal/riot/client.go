package riot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"rift-rewind/internal/config"

	"github.com/valyala/fasthttp"
)

// Client wraps the Riot account-v1 and match-v5 endpoints. Every call goes
// through the limiter.
type Client struct {
	apiKey  string
	client  *fasthttp.Client
	limiter *Limiter
}

func NewClient(cfg *config.Config, limiter *Limiter) *Client {
	return &Client{
		apiKey:  cfg.RiotAPIKey,
		limiter: limiter,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *Client) AccountByRiotID(ctx context.Context, routing, gameName, tagLine string) (*Account, error) {
	u := fmt.Sprintf("https://%s.api.riotgames.com/riot/account/v1/accounts/by-riot-id/%s/%s",
		routing, url.PathEscape(gameName), url.PathEscape(tagLine))

	var account *Account
	err := c.limiter.Execute(ctx, func(ctx context.Context) error {
		var err error
		account, _, err = doRequest[Account](ctx, c, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// MatchIDs fetches one page of match ids for a player, newest first.
// startTime and endTime are epoch seconds bounding the listing.
func (c *Client) MatchIDs(ctx context.Context, routing, puuid string, start, count int, startTime, endTime int64) ([]string, error) {
	u := fmt.Sprintf("https://%s.api.riotgames.com/lol/match/v5/matches/by-puuid/%s/ids?start=%d&count=%d&startTime=%d&endTime=%d",
		routing, puuid, start, count, startTime, endTime)

	var ids *[]string
	err := c.limiter.Execute(ctx, func(ctx context.Context) error {
		var err error
		ids, _, err = doRequest[[]string](ctx, c, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

// Match fetches one match by id, returning both the parsed record and the
// raw body for the cache.
func (c *Client) Match(ctx context.Context, matchID string) (*Match, []byte, error) {
	u := fmt.Sprintf("https://%s.api.riotgames.com/lol/match/v5/matches/%s", MatchRouting(matchID), matchID)

	var match *Match
	var raw []byte
	err := c.limiter.Execute(ctx, func(ctx context.Context) error {
		var err error
		match, raw, err = doRequest[Match](ctx, c, u)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return match, raw, nil
}

func doRequest[T any](ctx context.Context, client *Client, url string) (*T, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("X-Riot-Token", client.apiKey)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, nil, err
		}
	}

	switch resp.StatusCode() {
	case fasthttp.StatusOK:
	case fasthttp.StatusNotFound:
		return nil, nil, ErrNotFound
	case fasthttp.StatusTooManyRequests:
		return nil, nil, &RateLimitError{RetryAfter: retryAfter(resp)}
	default:
		return nil, nil, &StatusError{Code: resp.StatusCode()}
	}

	body := append([]byte(nil), resp.Body()...)

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, body, nil
}

func retryAfter(resp *fasthttp.Response) time.Duration {
	v := string(resp.Header.Peek("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
