package llm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/testscribe/testscribe/internal/domain"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat completion conversation.
type Message struct {
	Role    string
	Content string
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Config for the chat completion client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	RateLimitRPM int // Requests per minute
	CacheTTL     time.Duration
	MaxTokens    int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      60 * time.Second,
		RateLimitRPM: 50,
		CacheTTL:     24 * time.Hour,
		MaxTokens:    8192,
	}
}

// Metrics tracks API usage.
type Metrics struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalTokensIn   int64
	TotalTokensOut  int64
	TotalLatencyMs  int64
	CacheHits       int64
	CacheMisses     int64
}

// Cache for completion responses.
type Cache struct {
	data map[string]cacheEntry
	mu   sync.RWMutex
}

type cacheEntry struct {
	response  string
	expiresAt time.Time
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{data: make(map[string]cacheEntry)}
}

// Get retrieves from cache.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.response, true
}

// Set stores in cache.
func (c *Cache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{response: value, expiresAt: time.Now().Add(ttl)}
}

// Recorder receives per-request telemetry. *observability.Metrics satisfies
// it.
type Recorder interface {
	RecordLLMRequest(model, status string, duration time.Duration, inputTokens, outputTokens int64)
	RecordLLMCacheHit()
	RecordLLMCacheMiss()
}

// Client calls an OpenAI-compatible chat completion endpoint with rate
// limiting and response caching.
type Client struct {
	api       openai.Client
	model     string
	maxTokens int

	rateLimiter *rate.Limiter

	cache    *Cache
	cacheTTL time.Duration

	metrics  *Metrics
	recorder Recorder
}

// SetRecorder attaches an external telemetry recorder.
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// NewClient creates a chat completion client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = DefaultConfig().RateLimitRPM
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	// tokens per second = RPM / 60
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1)

	return &Client{
		api:         openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		rateLimiter: limiter,
		cache:       NewCache(),
		cacheTTL:    cfg.CacheTTL,
		metrics:     &Metrics{},
	}, nil
}

// Complete sends a chat completion request and returns the first choice's
// text content.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	atomic.AddInt64(&c.metrics.TotalRequests, 1)

	cacheKey := c.cacheKey(messages, temperature)
	if cached, ok := c.cache.Get(cacheKey); ok {
		atomic.AddInt64(&c.metrics.CacheHits, 1)
		if c.recorder != nil {
			c.recorder.RecordLLMCacheHit()
		}
		return cached, nil
	}
	atomic.AddInt64(&c.metrics.CacheMisses, 1)
	if c.recorder != nil {
		c.recorder.RecordLLMCacheMiss()
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		atomic.AddInt64(&c.metrics.FailedRequests, 1)
		return "", fmt.Errorf("rate limit: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toUnion(messages),
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		atomic.AddInt64(&c.metrics.FailedRequests, 1)
		if c.recorder != nil {
			c.recorder.RecordLLMRequest(c.model, "error", time.Since(start), 0, 0)
		}
		return "", domain.LLMTransportError(err)
	}

	atomic.AddInt64(&c.metrics.SuccessRequests, 1)
	atomic.AddInt64(&c.metrics.TotalTokensIn, resp.Usage.PromptTokens)
	atomic.AddInt64(&c.metrics.TotalTokensOut, resp.Usage.CompletionTokens)
	atomic.AddInt64(&c.metrics.TotalLatencyMs, time.Since(start).Milliseconds())
	if c.recorder != nil {
		c.recorder.RecordLLMRequest(c.model, "success", time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", domain.ErrLLMEmpty
	}

	text := resp.Choices[0].Message.Content
	c.cache.Set(cacheKey, text, c.cacheTTL)

	return text, nil
}

func toUnion(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// cacheKey hashes the full conversation plus sampling settings.
func (c *Client) cacheKey(messages []Message, temperature float64) string {
	h := md5.New()
	fmt.Fprintf(h, "%s|%.3f", c.model, temperature)
	for _, m := range messages {
		fmt.Fprintf(h, "|%s:%s", m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetMetrics returns current metrics.
func (c *Client) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:   atomic.LoadInt64(&c.metrics.TotalRequests),
		SuccessRequests: atomic.LoadInt64(&c.metrics.SuccessRequests),
		FailedRequests:  atomic.LoadInt64(&c.metrics.FailedRequests),
		TotalTokensIn:   atomic.LoadInt64(&c.metrics.TotalTokensIn),
		TotalTokensOut:  atomic.LoadInt64(&c.metrics.TotalTokensOut),
		TotalLatencyMs:  atomic.LoadInt64(&c.metrics.TotalLatencyMs),
		CacheHits:       atomic.LoadInt64(&c.metrics.CacheHits),
		CacheMisses:     atomic.LoadInt64(&c.metrics.CacheMisses),
	}
}

// GetModel returns the model being used.
func (c *Client) GetModel() string {
	return c.model
}
