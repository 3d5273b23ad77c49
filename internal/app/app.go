// Package app assembles the engine and its collaborators from Settings. Both the
// Lambda entry point and dispatchctl build through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"google.golang.org/api/option"

	"dispatch-bot/internal/config"
	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/integrations/drive"
	"dispatch-bot/internal/integrations/mailer"
	"dispatch-bot/internal/integrations/objectstore"
	"dispatch-bot/internal/integrations/paramstore"
	"dispatch-bot/internal/integrations/routing"
	"dispatch-bot/internal/integrations/sheets"
	"dispatch-bot/internal/integrations/telegram"
	"dispatch-bot/internal/ledger"
	"dispatch-bot/internal/repository"
	"dispatch-bot/internal/session"
	"dispatch-bot/internal/usecase"
)

// Parameter names, relative to Settings.ParamPrefix.
const (
	ParamTelegramToken     = "/telegram-token"
	ParamWebhookSecret     = "/telegram-webhook-secret"
	ParamGoogleCredentials = "/google-credentials"
	ParamRoster            = "/roster"
)

// App holds the wired components an entry point needs.
type App struct {
	Settings config.Settings
	Params   *paramstore.Client
	Roster   *domain.Roster
	Telegram *telegram.Client
	Ledger   *ledger.Gateway
	Sessions *session.Manager
	Engine   *usecase.Engine
}

type options struct {
	roster         *domain.Roster
	memorySessions bool
	logger         *slog.Logger
}

type Option func(*options)

// WithRoster skips reading the roster parameter.
func WithRoster(r *domain.Roster) Option {
	return func(o *options) {
		o.roster = r
	}
}

// WithMemorySessions keeps sessions in process instead of DynamoDB.
func WithMemorySessions() Option {
	return func(o *options) {
		o.memorySessions = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New builds every client from the default AWS configuration and the secrets in
// Parameter Store.
func New(ctx context.Context, settings config.Settings, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}

	params, err := paramstore.New(awsssm.NewFromConfig(cfg), settings.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	roster := o.roster
	if roster == nil {
		raw, err := params.GetParameter(ctx, ParamRoster)
		if err != nil {
			return nil, fmt.Errorf("app: read roster: %w", err)
		}
		if roster, err = config.ParseRoster([]byte(raw)); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	credentials, err := params.GetParameter(ctx, ParamGoogleCredentials)
	if err != nil {
		return nil, fmt.Errorf("app: read google credentials: %w", err)
	}
	googleOpts := []option.ClientOption{option.WithCredentialsJSON([]byte(credentials))}

	sheetsClient, err := sheets.New(ctx, settings.SpreadsheetID, googleOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	driveClient, err := drive.NewService(ctx, googleOpts,
		drive.WithRetry(drive.RetryConfig{Attempts: settings.UploadAttempts, Delay: settings.UploadRetryDelay}),
		drive.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	repo, err := repository.New(awsdynamodb.NewFromConfig(cfg), settings.StateTable)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	var attachments usecase.AttachmentStore
	if settings.AttachmentBucket != "" {
		s3Client, err := objectstore.New(awss3.NewFromConfig(cfg), settings.AttachmentBucket)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		attachments = s3Client
	} else {
		logger.Warn("ATTACHMENT_BUCKET not set, keeping attachments in memory")
		attachments = objectstore.NewMemory()
	}

	if settings.MailFrom == "" {
		return nil, errors.New("app: MAIL_FROM is required to send invoices")
	}
	mail, err := mailer.New(awssesv2.NewFromConfig(cfg), settings.MailFrom)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	tg, err := telegram.New(paramstore.NewLazyToken(params, ParamTelegramToken),
		telegram.WithBaseURL(settings.TelegramAPIEndpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	router := routing.New(
		routing.WithRouteURL(settings.RouteServiceURL),
		routing.WithGeocoderURL(settings.GeocoderServiceURL),
	)

	var backend session.Backend = repo
	if o.memorySessions {
		backend = session.NewMemory()
	}
	sessions, err := session.NewManager(backend, attachments,
		session.WithTTL(settings.SessionTTL),
		session.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger)}
	if settings.AppendRowCache {
		ledgerOpts = append(ledgerOpts, ledger.WithRowCache(repo))
	}
	gateway, err := ledger.NewGateway(sheetsClient, roster, ledgerOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	engine, err := usecase.NewEngine(usecase.Deps{
		Store:       sessions,
		Roster:      roster,
		Ledger:      gateway,
		Blobs:       driveClient,
		Attachments: attachments,
		Files:       tg,
		Mailer:      mail,
		Router:      router,
		Counters:    repo,
		Customers:   repo,
	},
		usecase.WithFolders(usecase.Folders{Statements: settings.StatementsFolder, Documents: settings.DocumentsFolder}),
		usecase.WithAuthorizer(settings.Authorized),
		usecase.WithNotifier(tg),
		usecase.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	return &App{
		Settings: settings,
		Params:   params,
		Roster:   roster,
		Telegram: tg,
		Ledger:   gateway,
		Sessions: sessions,
		Engine:   engine,
	}, nil
}

// WebhookSecret returns a cached source for the webhook secret token.
func (a *App) WebhookSecret() *paramstore.LazyToken {
	return paramstore.NewLazyToken(a.Params, ParamWebhookSecret)
}
