package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the process configuration shared by the Lambda and CLI entry points.
type Settings struct {
	StateTable          string
	ParamPrefix         string
	SpreadsheetID       string
	StatementsFolder    string
	DocumentsFolder     string
	AttachmentBucket    string
	MailFrom            string
	AuthorizedUsers     []string
	SessionTTL          time.Duration
	AppendRowCache      bool
	UploadAttempts      int
	UploadRetryDelay    time.Duration
	RouteServiceURL     string
	GeocoderServiceURL  string
	TelegramAPIEndpoint string
}

// LoadDotEnv reads a .env file into the environment when one is present.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// FromEnv builds Settings from getenv. Required keys: STATE_TABLE, PARAM_PREFIX, SPREADSHEET_ID.
func FromEnv(getenv func(string) string) (Settings, error) {
	s := Settings{
		StateTable:          strings.TrimSpace(getenv("STATE_TABLE")),
		ParamPrefix:         strings.TrimRight(strings.TrimSpace(getenv("PARAM_PREFIX")), "/"),
		SpreadsheetID:       strings.TrimSpace(getenv("SPREADSHEET_ID")),
		StatementsFolder:    strings.TrimSpace(getenv("DRIVE_FOLDER_STATEMENTS")),
		DocumentsFolder:     strings.TrimSpace(getenv("DRIVE_FOLDER_DOCUMENTS")),
		AttachmentBucket:    strings.TrimSpace(getenv("ATTACHMENT_BUCKET")),
		MailFrom:            strings.TrimSpace(getenv("MAIL_FROM")),
		AuthorizedUsers:     splitList(getenv("AUTHORIZED_USERS")),
		SessionTTL:          time.Duration(envInt(getenv, "SESSION_TTL_HOURS", 24)) * time.Hour,
		AppendRowCache:      envBool(getenv, "APPEND_ROW_CACHE", true),
		UploadAttempts:      envInt(getenv, "UPLOAD_ATTEMPTS", 3),
		UploadRetryDelay:    time.Duration(envInt(getenv, "UPLOAD_RETRY_DELAY_MS", 2000)) * time.Millisecond,
		RouteServiceURL:     envString(getenv, "ROUTE_SERVICE_URL", "https://router.project-osrm.org"),
		GeocoderServiceURL:  envString(getenv, "GEOCODER_SERVICE_URL", "https://nominatim.openstreetmap.org"),
		TelegramAPIEndpoint: envString(getenv, "TELEGRAM_API_URL", "https://api.telegram.org"),
	}

	for key, v := range map[string]string{
		"STATE_TABLE":    s.StateTable,
		"PARAM_PREFIX":   s.ParamPrefix,
		"SPREADSHEET_ID": s.SpreadsheetID,
	} {
		if v == "" {
			return Settings{}, fmt.Errorf("config: required environment variable %s is not set", key)
		}
	}
	if s.UploadAttempts < 1 {
		s.UploadAttempts = 1
	}
	return s, nil
}

// Authorized reports whether userID may drive workflows. An empty list authorizes nobody.
func (s Settings) Authorized(userID string) bool {
	for _, u := range s.AuthorizedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envString(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(getenv func(string) string, key string, def bool) bool {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
