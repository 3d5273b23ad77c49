package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// driveAPI is the subset of Drive operations the Client needs. serviceAPI adapts
// *drive.Service to it.
type driveAPI interface {
	CreateFile(ctx context.Context, name, folder string, data []byte) (*drivev3.File, error)
	ShareWithAnyone(ctx context.Context, fileID string) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// RetryConfig bounds upload retries on transient failures.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryConfig is three attempts two seconds apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Delay: 2 * time.Second}
}

// Client is the blob store for statements, invoices and load documents.
type Client struct {
	api    driveAPI
	retry  RetryConfig
	sleep  func(context.Context, time.Duration) error
	logger *slog.Logger
}

type Option func(*Client)

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		if cfg.Attempts < 1 {
			cfg.Attempts = 1
		}
		c.retry = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New wraps a Drive API implementation.
func New(api driveAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("drive: api must not be nil")
	}
	c := &Client{api: api, retry: DefaultRetryConfig(), sleep: sleepCtx, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewService builds a Client backed by the Drive v3 REST API.
func NewService(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Client, error) {
	svc, err := drivev3.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("drive: new service: %w", err)
	}
	return New(&serviceAPI{svc: svc}, opts...)
}

// Upload stores data under folder, opens it to anyone with the link and returns
// the share link. Transient failures are retried per the RetryConfig.
func (c *Client) Upload(ctx context.Context, name, folder string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("drive: refusing to upload empty file")
	}
	var file *drivev3.File
	err := c.withRetry(ctx, "upload "+name, func() error {
		f, err := c.api.CreateFile(ctx, name, folder, data)
		if err != nil {
			return err
		}
		file = f
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("drive: upload %s: %w", name, err)
	}
	if err := c.withRetry(ctx, "share "+file.Id, func() error {
		return c.api.ShareWithAnyone(ctx, file.Id)
	}); err != nil {
		return "", fmt.Errorf("drive: share %s: %w", file.Id, err)
	}
	if file.WebViewLink != "" {
		return file.WebViewLink, nil
	}
	return ShareLink(file.Id), nil
}

// Download fetches a file by share link or bare id.
func (c *Client) Download(ctx context.Context, linkOrID string) ([]byte, error) {
	id := FileID(linkOrID)
	if id == "" {
		return nil, fmt.Errorf("drive: no file id in %q", linkOrID)
	}
	data, err := c.api.Download(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("drive: download %s: %w", id, err)
	}
	return data, nil
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retry.Delay); err != nil {
				return err
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		c.logger.Warn("drive call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
	}
	return fmt.Errorf("%w: %w", ErrTransient, lastErr)
}

// ErrTransient marks an operation that kept failing with retryable errors.
var ErrTransient = errors.New("drive: transient failure")

// IsTransient reports whether err is worth retrying: throttling, server errors
// and network-level failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var fileIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/d/([A-Za-z0-9_-]{10,})`),
	regexp.MustCompile(`[?&]id=([A-Za-z0-9_-]{10,})`),
}

var bareID = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)

// FileID extracts the Drive file id from a share link. A bare id is returned as-is.
func FileID(link string) string {
	link = strings.TrimSpace(link)
	for _, re := range fileIDPatterns {
		if m := re.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	if bareID.MatchString(link) {
		return link
	}
	return ""
}

// ShareLink is the viewer URL of a file id.
func ShareLink(id string) string {
	return "https://drive.google.com/file/d/" + id + "/view?usp=sharing"
}

// serviceAPI adapts *drive.Service to driveAPI.
type serviceAPI struct {
	svc *drivev3.Service
}

func (s *serviceAPI) CreateFile(ctx context.Context, name, folder string, data []byte) (*drivev3.File, error) {
	meta := &drivev3.File{Name: name}
	if folder != "" {
		meta.Parents = []string{folder}
	}
	return s.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

func (s *serviceAPI) ShareWithAnyone(ctx context.Context, fileID string) error {
	_, err := s.svc.Permissions.Create(fileID, &drivev3.Permission{Type: "anyone", Role: "reader"}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return err
}

func (s *serviceAPI) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := s.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
