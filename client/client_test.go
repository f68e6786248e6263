package client

import (
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
)

type mockRoundTripper struct {
	fn func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

func newMockResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(fn func(*http.Request) (*http.Response, error)) *Client {
	c := NewClient("testtoken")
	c.HTTP = &http.Client{Transport: &mockRoundTripper{fn: fn}}

	return c
}

func TestGetGatewayBotSuccess(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bot testtoken" {
			t.Fatalf("missing or wrong Authorization header: %q", req.Header.Get("Authorization"))
		}

		return newMockResponse(200, `{"url":"wss://gateway.discord.gg","shards":4,"session_start_limit":{"total":1000,"remaining":998,"reset_after":0,"max_concurrency":1}}`), nil
	})

	res, err := c.GetGatewayBot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Shards != 4 {
		t.Fatalf("expected 4 shards, got %d", res.Shards)
	}

	if res.SessionStartLimit.Remaining != 998 {
		t.Fatalf("expected 998 remaining sessions, got %d", res.SessionStartLimit.Remaining)
	}
}

func TestGetGatewayBotRetriesOnRateLimit(t *testing.T) {
	var attempts int32

	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return newMockResponse(429, `{"message":"rate limited","retry_after":1,"global":false}`), nil
		}

		return newMockResponse(200, `{"url":"wss://gateway.discord.gg","shards":1,"session_start_limit":{"total":1000,"remaining":999,"reset_after":0,"max_concurrency":1}}`), nil
	})

	res, err := c.GetGatewayBot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Shards != 1 {
		t.Fatalf("expected 1 shard after retry, got %d", res.Shards)
	}

	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestGetGatewayBotInvalidToken(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return newMockResponse(401, `{"message":"401: Unauthorized"}`), nil
	})

	_, err := c.GetGatewayBot()
	if err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
