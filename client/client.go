// Package client is the minimal REST surface the gateway needs: looking
// up the recommended shard count and session_start_limit bucket before
// connecting or re-sharding (spec.md §6; SPEC_FULL.md §3).
package client

import (
	"errors"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidToken is returned when Discord rejects the bot token.
var ErrInvalidToken = errors.New("invalid token passed")

// endpointGateway is the literal gateway-discovery URL spec.md §6 pins:
// GET https://discordapp.com/api/gateway/bot?v=6&encoding=json. Unlike a
// general REST route, Discord does not version this path segment; the
// gateway version instead travels as the v query parameter.
const endpointGateway = "/gateway/bot?v=6&encoding=json"

// Client is a thin REST client, grounded on the teacher's client.Client:
// same FetchJSON/HandleRequest split, same bot-token Authorization
// header, trimmed to the one route the gateway actually calls.
type Client struct {
	Token string

	HTTP *http.Client

	URLHost   string
	URLScheme string
	UserAgent string
}

// NewClient builds a Client against the public Discord API.
func NewClient(token string) *Client {
	return &Client{
		Token:     token,
		HTTP:      http.DefaultClient,
		URLHost:   "discordapp.com",
		URLScheme: "https",
		UserAgent: "DiscordBot (sandwich-gateway, 1.0)",
	}
}

// GetGatewayBot fetches the recommended shard count and identify bucket
// for this token (spec.md §6). A 429 is retried after RetryAfter, again
// for every further 429, matching the teacher's Manager.Gateway retry loop.
func (c *Client) GetGatewayBot() (*GatewayBotResponse, error) {
	var res GatewayBotResponse

	if err := c.FetchJSON(http.MethodGet, endpointGateway, nil, &res); err != nil {
		if rl, ok := err.(*rateLimitedError); ok {
			time.Sleep(rl.retryAfter)
			return c.GetGatewayBot()
		}

		return nil, err
	}

	return &res, nil
}

// rateLimitedError carries the retry_after Discord asked for.
type rateLimitedError struct {
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string { return "rate limited by discord" }

// FetchJSON issues a request and decodes the JSON response body into
// structure.
func (c *Client) FetchJSON(method, path string, body io.Reader, structure interface{}) error {
	req, err := http.NewRequest(method, path, body)
	if err != nil {
		return err
	}

	res, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		var rl TooManyRequests
		if err := json.NewDecoder(res.Body).Decode(&rl); err != nil {
			return err
		}

		return &rateLimitedError{retryAfter: rl.RetryAfter * time.Millisecond}
	}

	return json.NewDecoder(res.Body).Decode(structure)
}

// doRequest fills in host, scheme, and auth headers before dispatching
// the request, same split as the teacher's HandleRequest.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	req.URL.Path = "/api" + req.URL.Path

	if req.URL.Host == "" {
		req.URL.Host = c.URLHost
	}

	if req.URL.Scheme == "" {
		req.URL.Scheme = c.URLScheme
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bot "+c.Token)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode == http.StatusUnauthorized {
		res.Body.Close()
		return nil, ErrInvalidToken
	}

	return res, nil
}
