package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrArchiveNotFound  = errors.New("archived conversation not found")
	ErrNilConversation  = errors.New("conversation is nil")
	ErrEmptyContactID   = errors.New("conversation id is empty")
	ErrArchiveMisconfig = errors.New("archive store misconfigured")
)

const (
	defaultArchiveKeyPrefix = "carbot:conversation:"
	defaultArchiveTTL       = 7 * 24 * time.Hour
	maxResponseSizeBytes    = 2 << 20
)

// Archive persists finished and in-progress conversations outside process
// memory. The in-memory Store stays authoritative during a turn; the archive
// is written after commit and read only when a conversation is not resident.
type Archive interface {
	Load(ctx context.Context, conversationID string) (*Conversation, error)
	Save(ctx context.Context, c *Conversation) error
	Delete(ctx context.Context, conversationID string) error
}

// ArchiveOption customizes UpstashRedisArchive.
type ArchiveOption func(*UpstashRedisArchive)

func WithKeyPrefix(prefix string) ArchiveOption {
	return func(a *UpstashRedisArchive) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			a.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) ArchiveOption {
	return func(a *UpstashRedisArchive) {
		a.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) ArchiveOption {
	return func(a *UpstashRedisArchive) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// UpstashRedisArchive persists conversations in Upstash Redis via REST.
type UpstashRedisArchive struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisArchive(cfg UpstashRedisConfig, opts ...ArchiveOption) (*UpstashRedisArchive, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrArchiveMisconfig)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrArchiveMisconfig)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	archive := &UpstashRedisArchive{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultArchiveKeyPrefix,
		ttl:       defaultArchiveTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(archive)
		}
	}

	if archive.ttl < 0 {
		return nil, fmt.Errorf("%w: ttl must be >= 0", ErrArchiveMisconfig)
	}

	return archive, nil
}

func (a *UpstashRedisArchive) Load(ctx context.Context, conversationID string) (*Conversation, error) {
	key, err := a.redisKey(conversationID)
	if err != nil {
		return nil, err
	}

	resp, err := a.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrArchiveNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode conversation payload: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal([]byte(encoded), &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	if strings.TrimSpace(conv.ID) == "" {
		conv.ID = conversationID
	}

	return &conv, nil
}

func (a *UpstashRedisArchive) Save(ctx context.Context, c *Conversation) error {
	if c == nil {
		return ErrNilConversation
	}
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyContactID
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	} else {
		c.UpdatedAt = c.UpdatedAt.UTC()
	}

	key, err := a.redisKey(c.ID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if a.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(a.ttl))
	}

	if _, err := a.exec(ctx, cmd); err != nil {
		return err
	}

	return nil
}

func (a *UpstashRedisArchive) Delete(ctx context.Context, conversationID string) error {
	key, err := a.redisKey(conversationID)
	if err != nil {
		return err
	}
	_, err = a.exec(ctx, []any{"DEL", key})
	return err
}

func (a *UpstashRedisArchive) redisKey(conversationID string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", ErrEmptyContactID
	}
	return strings.TrimSpace(a.keyPrefix) + conversationID, nil
}

func (a *UpstashRedisArchive) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if a == nil {
		return nil, errors.New("nil archive")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}
	if strings.TrimSpace(a.baseURL) == "" || strings.TrimSpace(a.token) == "" {
		return nil, ErrArchiveMisconfig
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
