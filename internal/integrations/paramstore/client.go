package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
// Integrations that need secrets (chat token, service-account key) depend on this
// rather than the concrete *Client.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client with the given SSM API implementation. Names passed to
// the Client may be relative ("/roster"); they are joined onto prefix.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api, prefix: strings.TrimRight(strings.TrimSpace(prefix), "/")}, nil
}

// Name returns the fully qualified parameter name for a relative one.
func (c *Client) Name(rel string) string {
	rel = strings.TrimSpace(rel)
	if c.prefix == "" || strings.HasPrefix(rel, c.prefix+"/") {
		return rel
	}
	return c.prefix + "/" + strings.TrimLeft(rel, "/")
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.New("paramstore: name is required")
	}
	name = c.Name(name)

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// tokenPayload is the JSON shape stored in SSM for API tokens.
type tokenPayload struct {
	Token string `json:"token"`
}

// Token reads a `{"token": "..."}` parameter and returns the token.
func Token(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("paramstore: getter must not be nil")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	var payload tokenPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", fmt.Errorf("paramstore: decode token %q: %w", name, err)
	}
	if strings.TrimSpace(payload.Token) == "" {
		return "", fmt.Errorf("paramstore: token %q is empty", name)
	}
	return payload.Token, nil
}

// LazyToken resolves a token on first use and caches it. A failed fetch is not
// cached, so the next call tries again.
type LazyToken struct {
	getter Getter
	name   string

	mu    sync.Mutex
	token string
}

// NewLazyToken returns a LazyToken reading name through getter on first use.
func NewLazyToken(getter Getter, name string) *LazyToken {
	return &LazyToken{getter: getter, name: name}
}

// Get returns the cached token, fetching it while none is cached.
func (l *LazyToken) Get(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return l.token, nil
	}
	token, err := Token(ctx, l.getter, l.name)
	if err != nil {
		return "", err
	}
	l.token = token
	return token, nil
}
