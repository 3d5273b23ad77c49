package drive

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

type fakeDrive struct {
	createErrs []error
	creates    int
	shareErr   error
	shared     []string
	files      map[string][]byte
	folders    []string
}

func (f *fakeDrive) CreateFile(_ context.Context, name, folder string, data []byte) (*drivev3.File, error) {
	f.creates++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.folders = append(f.folders, folder)
	return &drivev3.File{Id: "1AbCdEfGhIjKlMnOp", Name: name}, nil
}

func (f *fakeDrive) ShareWithAnyone(_ context.Context, id string) error {
	f.shared = append(f.shared, id)
	return f.shareErr
}

func (f *fakeDrive) Download(_ context.Context, id string) ([]byte, error) {
	data, ok := f.files[id]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound}
	}
	return data, nil
}

func newTestClient(t *testing.T, api driveAPI) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := New(api, WithRetry(RetryConfig{Attempts: 3, Delay: time.Second}))
	require.NoError(t, err)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestUpload_SharesAndReturnsLink(t *testing.T) {
	api := &fakeDrive{}
	c, slept := newTestClient(t, api)
	link, err := c.Upload(context.Background(), "statement.pdf", "folder-1", []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOp/view?usp=sharing", link)
	require.Equal(t, []string{"1AbCdEfGhIjKlMnOp"}, api.shared)
	require.Equal(t, []string{"folder-1"}, api.folders)
	require.Empty(t, *slept)
}

func TestUpload_RetriesTransient(t *testing.T) {
	api := &fakeDrive{createErrs: []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		&googleapi.Error{Code: http.StatusTooManyRequests},
	}}
	c, slept := newTestClient(t, api)
	_, err := c.Upload(context.Background(), "s.pdf", "", []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, 3, api.creates)
	require.Equal(t, []time.Duration{time.Second, time.Second}, *slept)
}

func TestUpload_GivesUpAfterAttempts(t *testing.T) {
	boom := &googleapi.Error{Code: http.StatusBadGateway}
	api := &fakeDrive{createErrs: []error{boom, boom, boom, boom}}
	c, _ := newTestClient(t, api)
	_, err := c.Upload(context.Background(), "s.pdf", "", []byte("%PDF"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTransient)
	require.Equal(t, 3, api.creates)
}

func TestUpload_PermanentErrorNotRetried(t *testing.T) {
	api := &fakeDrive{createErrs: []error{&googleapi.Error{Code: http.StatusForbidden}}}
	c, _ := newTestClient(t, api)
	_, err := c.Upload(context.Background(), "s.pdf", "", []byte("%PDF"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTransient)
	require.Equal(t, 1, api.creates)
}

func TestUpload_Empty(t *testing.T) {
	c, _ := newTestClient(t, &fakeDrive{})
	_, err := c.Upload(context.Background(), "s.pdf", "", nil)
	require.ErrorContains(t, err, "empty")
}

func TestDownload(t *testing.T) {
	api := &fakeDrive{files: map[string][]byte{"1AbCdEfGhIjKlMnOp": []byte("rc")}}
	c, _ := newTestClient(t, api)

	data, err := c.Download(context.Background(), "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOp/view?usp=drivesdk")
	require.NoError(t, err)
	require.Equal(t, []byte("rc"), data)

	_, err = c.Download(context.Background(), "not a link")
	require.ErrorContains(t, err, "no file id")

	_, err = c.Download(context.Background(), "1ZzZzZzZzZzZzZz")
	require.ErrorContains(t, err, "download")
}

func TestFileID(t *testing.T) {
	cases := map[string]string{
		"https://drive.google.com/file/d/1AbCdEfGhIjKlMnOp/view?usp=sharing": "1AbCdEfGhIjKlMnOp",
		"https://drive.google.com/open?id=1AbCdEfGhIjKlMnOp":                 "1AbCdEfGhIjKlMnOp",
		"1AbCdEfGhIjKlMnOp":                                                  "1AbCdEfGhIjKlMnOp",
		"":                                                                   "",
		"n/a":                                                                "",
	}
	for in, want := range cases {
		require.Equal(t, want, FileID(in), in)
	}
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(&googleapi.Error{Code: 500}))
	require.True(t, IsTransient(context.DeadlineExceeded))
	require.False(t, IsTransient(&googleapi.Error{Code: 404}))
	require.False(t, IsTransient(context.Canceled))
	require.False(t, IsTransient(errors.New("bad request")))
	require.False(t, IsTransient(nil))
}
