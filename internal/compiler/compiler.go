package compiler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/dsl"
	"github.com/testscribe/testscribe/internal/llm"
	"github.com/testscribe/testscribe/internal/observability"
)

// Completer is the slice of the LLM client the compiler needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Options tunes one Compile call.
type Options struct {
	MaxAttempts int
	Temperature float64
}

// Result is a successful compilation.
type Result struct {
	Plan     *domain.ActionPlan
	Attempts int
	RawReply string
}

// Compiler runs the LLM repair loop and the deterministic post-processing.
type Compiler struct {
	client    Completer
	validator *dsl.Validator
	vocab     *Vocabulary
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// SetMetrics attaches a Prometheus recorder for embedding deployments.
func (c *Compiler) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// New creates a Compiler. A nil vocab selects DefaultVocabulary.
func New(client Completer, validator *dsl.Validator, vocab *Vocabulary, logger *zap.Logger) *Compiler {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return &Compiler{client: client, validator: validator, vocab: vocab, logger: logger}
}

// Compile turns a test request plus a site profile into a validated,
// post-processed action plan, repairing model output up to
// opts.MaxAttempts times before giving up with COMPILE_EXHAUSTED.
func (c *Compiler) Compile(ctx context.Context, req *domain.TestRequest, profile *domain.SiteProfile, opts Options) (*Result, error) {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	messages := []llm.Message{
		llm.System(systemPrompt),
		llm.User(dslPrompt()),
		llm.User(requestPrompt(req, profile)),
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reply, err := c.client.Complete(ctx, messages, opts.Temperature)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("completion failed", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			continue
		}

		plan, fault := c.tryParse(reply, req, profile)
		if fault == nil {
			c.logger.Info("compiled plan",
				zap.String("test_id", plan.Meta.TestID),
				zap.Int("steps", len(plan.Steps)),
				zap.Int("attempt", attempt))
			if c.metrics != nil {
				c.metrics.RecordCompile("success", attempt)
			}
			return &Result{Plan: plan, Attempts: attempt, RawReply: reply}, nil
		}

		c.logger.Warn("plan rejected", zap.Int("attempt", attempt), zap.Error(fault))
		lastErr = fault
		messages = append(messages,
			llm.Assistant(reply),
			llm.User(repairMessage(fault.Error())))
	}

	if c.metrics != nil {
		c.metrics.RecordCompile("exhausted", attempts)
	}
	return nil, domain.CompileExhaustedError(attempts, lastErr)
}

// tryParse runs one reply through extraction, parsing, metadata enrichment,
// schema validation and post-processing. A nil fault means the plan is
// accepted.
func (c *Compiler) tryParse(reply string, req *domain.TestRequest, profile *domain.SiteProfile) (*domain.ActionPlan, error) {
	raw := llm.ExtractJSON(reply)
	if raw == "" {
		return nil, &domain.DomainError{
			Code:    domain.ErrCodeLLMBadJSON,
			Message: "回复中未找到JSON对象",
			Err:     domain.ErrLLMBadJSON,
		}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &domain.DomainError{
			Code:    domain.ErrCodeLLMBadJSON,
			Message: fmt.Sprintf("JSON解析失败：%v", err),
			Err:     domain.ErrLLMBadJSON,
		}
	}

	enrichMeta(doc, req)

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encoding plan: %w", err)
	}
	if _, issues, err := c.validator.ValidateJSON(data); err != nil {
		return nil, err
	} else if len(issues) > 0 {
		return nil, dsl.Err(issues)
	}

	var plan domain.ActionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}

	if err := PostProcess(&plan, profile, c.vocab); err != nil {
		return nil, err
	}
	if issues := c.validator.ValidatePlan(&plan); len(issues) > 0 {
		return nil, dsl.Err(issues)
	}
	return &plan, nil
}

// enrichMeta guarantees meta.testId and meta.baseUrl before validation. The
// request's base URL wins over whatever the model put there.
func enrichMeta(doc map[string]any, req *domain.TestRequest) {
	meta, ok := doc["meta"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		doc["meta"] = meta
	}
	if id, _ := meta["testId"].(string); id == "" {
		meta["testId"] = DeriveTestID(req.Title)
	}
	if req.BaseURL != "" {
		meta["baseUrl"] = req.BaseURL
	}
}

// DeriveTestID slugs the request title into REQ-<UPPER-SLUG>, falling back
// to a truncated md5 of the title when no ASCII slug survives.
func DeriveTestID(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToUpper(title) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		sum := md5.Sum([]byte(title))
		slug = strings.ToUpper(hex.EncodeToString(sum[:])[:8])
	}
	return "REQ-" + slug
}
