package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/apikey"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formatter renders CLI results.
type Formatter interface {
	FormatKeys(keys []apikey.Record) (string, error)
	FormatIssued(issued apikey.Issued) (string, error)
	FormatLimits(limits Limits) (string, error)
}

// KeyView is the printable form of a key record. The hash is never shown.
type KeyView struct {
	ID        string     `json:"id" yaml:"id"`
	UserID    string     `json:"user_id" yaml:"user_id"`
	Name      string     `json:"name" yaml:"name"`
	Prefix    string     `json:"prefix" yaml:"prefix"`
	Status    string     `json:"status" yaml:"status"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" yaml:"revoked_at,omitempty"`
}

// IssuedView carries a freshly issued key, including its plaintext secret.
type IssuedView struct {
	KeyView `yaml:",inline"`
	Key     string `json:"key" yaml:"key"`
}

// Limits describes the effective rate limiter settings.
type Limits struct {
	WindowMs       int           `json:"window_ms" yaml:"window_ms"`
	MaxRequests    int           `json:"max_requests" yaml:"max_requests"`
	IdentityHeader string        `json:"identity_header" yaml:"identity_header"`
	SweepMode      string        `json:"sweep_mode" yaml:"sweep_mode"`
	SweepInterval  time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	Shards         int           `json:"shards" yaml:"shards"`
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &TableFormatter{Markdown: true}
	default:
		return &TableFormatter{}
	}
}

// ViewKey converts a record to its printable form.
func ViewKey(rec apikey.Record) KeyView {
	status := "active"
	if rec.Revoked() {
		status = "revoked"
	}
	return KeyView{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Name:      rec.Name,
		Prefix:    rec.Prefix,
		Status:    status,
		CreatedAt: rec.CreatedAt.UTC(),
		RevokedAt: rec.RevokedAt,
	}
}

func viewKeys(keys []apikey.Record) []KeyView {
	views := make([]KeyView, 0, len(keys))
	for _, rec := range keys {
		views = append(views, ViewKey(rec))
	}
	return views
}
