package rdx

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when the auth service answers without a token.
var ErrNoToken = errors.New("no token received in login response")

// loginTokenSource exchanges the configured credentials for an RDX token.
// The auth service does not report an expiry, so a fixed TTL is assumed.
type loginTokenSource struct {
	client  *Client
	ttl     time.Duration
	timeout time.Duration
	nowFunc func() time.Time
}

func (s *loginTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	token, err := s.client.login(ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   tokenHeader,
		Expiry:      s.nowFunc().Add(s.ttl),
	}, nil
}

// tokenCache reuses a token until it expires or the upstream rejects it.
type tokenCache struct {
	mu     sync.Mutex
	source oauth2.TokenSource
	reuse  oauth2.TokenSource
}

func newTokenCache(source oauth2.TokenSource) *tokenCache {
	return &tokenCache{source: source, reuse: oauth2.ReuseTokenSource(nil, source)}
}

func (c *tokenCache) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	ts := c.reuse
	c.mu.Unlock()
	return ts.Token()
}

// Invalidate forces the next Token call to log in again.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	c.reuse = oauth2.ReuseTokenSource(nil, c.source)
	c.mu.Unlock()
}
