package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	names  []string
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.names = append(f.names, *in.Name)
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func valueOut(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: strPtr(v)}}
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: valueOut("company: {}")}
	client, err := New(api, "/dispatch/")
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "/roster")
	require.NoError(t, err)
	require.Equal(t, "company: {}", v)
	require.Equal(t, []string{"/dispatch/roster"}, api.names)
}

func TestGetParameter_QualifiedNameKept(t *testing.T) {
	api := &fakeAPI{getOut: valueOut("x")}
	client, err := New(api, "/dispatch")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "/dispatch/roster")
	require.NoError(t, err)
	require.Equal(t, []string{"/dispatch/roster"}, api.names)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{}, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "")
	require.ErrorContains(t, err, "must not be nil")
}

type staticGetter struct {
	value string
	err   error
	calls int
}

func (s *staticGetter) GetParameter(context.Context, string) (string, error) {
	s.calls++
	return s.value, s.err
}

func TestToken(t *testing.T) {
	tok, err := Token(context.Background(), &staticGetter{value: `{"token":"abc"}`}, "/telegram-token")
	require.NoError(t, err)
	require.Equal(t, "abc", tok)

	_, err = Token(context.Background(), &staticGetter{value: `not json`}, "/telegram-token")
	require.ErrorContains(t, err, "decode token")

	_, err = Token(context.Background(), &staticGetter{value: `{"token":" "}`}, "/telegram-token")
	require.ErrorContains(t, err, "is empty")

	_, err = Token(context.Background(), nil, "x")
	require.Error(t, err)
}

func TestLazyToken_FetchesOnce(t *testing.T) {
	g := &staticGetter{value: `{"token":"abc"}`}
	lt := NewLazyToken(g, "/telegram-token")
	for i := 0; i < 3; i++ {
		tok, err := lt.Get(context.Background())
		require.NoError(t, err)
		require.Equal(t, "abc", tok)
	}
	require.Equal(t, 1, g.calls)
}

func TestLazyToken_RetriesAfterError(t *testing.T) {
	g := &staticGetter{err: errors.New("throttled")}
	lt := NewLazyToken(g, "/telegram-webhook-secret")

	_, err := lt.Get(context.Background())
	require.ErrorContains(t, err, "throttled")

	g.err = nil
	g.value = `{"token":"s3cret"}`
	tok, err := lt.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "s3cret", tok)

	tok, err = lt.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "s3cret", tok)
	require.Equal(t, 2, g.calls)
}
