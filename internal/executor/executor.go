// Package executor replays action plans against a real browser and records
// structured run artifacts.
package executor

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/observability"
	"github.com/testscribe/testscribe/internal/storage"
)

// timeoutMessage is what users see instead of a raw locator timeout.
const timeoutMessage = "验证失败：未能找到指定的DOM元素"

// Executor runs one plan at a time against its own browser context.
type Executor struct {
	cfg     config.ExecutorConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New creates an Executor.
func New(cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return &Executor{cfg: cfg, logger: logger}
}

// SetMetrics attaches a Prometheus recorder for embedding deployments.
func (e *Executor) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// Run executes the plan step by step. Step failures are recorded in the
// returned RunResult; the error return is reserved for setup and I/O
// failures that prevented execution entirely.
func (e *Executor) Run(ctx context.Context, plan *domain.ActionPlan, artifactsDir string) (*domain.RunResult, error) {
	now := time.Now()
	if artifactsDir == "" {
		artifactsDir = filepath.Join(e.cfg.OutputRoot,
			domain.Timestamp(now)+"_"+SanitizeTestID(plan.Meta.TestID))
	}
	if err := os.MkdirAll(filepath.Join(artifactsDir, "steps"), 0o755); err != nil {
		return nil, fmt.Errorf("creating artifacts dir: %w", err)
	}

	log, err := newRunLog(filepath.Join(artifactsDir, "runner.log"))
	if err != nil {
		return nil, err
	}
	defer log.Close()

	run := &domain.RunResult{
		RunID:        filepath.Base(artifactsDir),
		TestID:       plan.Meta.TestID,
		Status:       domain.StatusPassed,
		StartedAt:    now.UTC().Format(time.RFC3339),
		ArtifactsDir: artifactsDir,
	}
	log.Info("run %s started, %d steps", run.RunID, len(plan.Steps))

	page, cleanup, err := e.openPage()
	if err != nil {
		run.Status = domain.StatusFailed
		run.Error = err.Error()
		run.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		log.Error("browser setup failed: %v", err)
		e.writeRun(artifactsDir, run)
		return run, nil
	}
	defer cleanup()

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			run.Status = domain.StatusFailed
			run.Error = err.Error()
			break
		}

		result := e.execStep(page, plan, step, i, log)
		e.captureStepState(page, &result)
		e.captureScreenshot(page, artifactsDir, i, &result)
		run.Steps = append(run.Steps, result)
		if e.metrics != nil {
			e.metrics.RecordStep(step.T, result.Status)
		}

		if result.Status == domain.StatusFailed {
			run.Status = domain.StatusFailed
			log.Error("step %d failed: %s", i+1, result.Error)
			break
		}
		log.Info("step %d passed (%s)", i+1, step.T)
	}

	run.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	log.Info("run %s finished: %s", run.RunID, run.Status)
	if e.metrics != nil {
		e.metrics.RecordRun(run.Status, time.Since(now))
	}

	if err := e.writeRun(artifactsDir, run); err != nil {
		return run, err
	}
	return run, nil
}

func (e *Executor) writeRun(dir string, run *domain.RunResult) error {
	if err := storage.WriteJSON(filepath.Join(dir, "run.json"), run); err != nil {
		return fmt.Errorf("writing run.json: %w", err)
	}
	return nil
}

// openPage brings up a browser page with the configured viewport and
// default timeout. The returned cleanup tears the whole stack down.
func (e *Executor) openPage() (playwright.Page, func(), error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(e.cfg.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, nil, fmt.Errorf("launching browser: %w", err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  e.cfg.ViewportWidth,
			Height: e.cfg.ViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, nil, fmt.Errorf("creating browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		pw.Stop()
		return nil, nil, fmt.Errorf("creating page: %w", err)
	}
	page.SetDefaultTimeout(float64(e.cfg.DefaultTimeout.Milliseconds()))

	cleanup := func() {
		browserCtx.Close()
		browser.Close()
		pw.Stop()
	}
	return page, cleanup, nil
}

func (e *Executor) execStep(page playwright.Page, plan *domain.ActionPlan, step domain.ActionStep, index int, log *runLog) domain.StepResult {
	result := domain.StepResult{
		Index:     index,
		Action:    step.T,
		Selector:  step.Selector,
		Status:    domain.StatusPassed,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}

	var err error
	switch step.T {
	case domain.StepGoto:
		target := ResolveURL(plan.Meta.BaseURL, step.URL)
		log.Info("step %d goto %s", index+1, target)
		_, err = page.Goto(target)
	case domain.StepFill:
		err = e.doFill(page, step)
	case domain.StepClick:
		err = e.doClick(page, step, index, log)
	case domain.StepAssert:
		err = e.doAssert(page, step)
	default:
		err = fmt.Errorf("unknown step type %q", step.T)
	}

	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = NormalizeStepError(err)
	}
	result.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	return result
}

func (e *Executor) doFill(page playwright.Page, step domain.ActionStep) error {
	locator := page.Locator(step.Selector).First()
	if err := locator.WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	}); err != nil {
		return err
	}
	return locator.Fill(step.ValueString())
}

// doClick retries a failed click exactly once after a short delay, then
// waits for JS handlers to settle.
func (e *Executor) doClick(page playwright.Page, step domain.ActionStep, index int, log *runLog) error {
	retried := false
	err := clickWithRetry(func() error {
		return page.Locator(step.Selector).First().Click()
	}, e.cfg.ClickRetryDelay, func(firstErr error) {
		retried = true
		log.Info("step %d click failed, retrying once: %v", index+1, firstErr)
	})
	if err != nil {
		return err
	}
	if retried {
		log.Info("step %d click retry succeeded", index+1)
	}
	time.Sleep(e.cfg.PostClickSettle)
	return nil
}

// clickWithRetry invokes click and, on failure, retries exactly once after
// delay. onRetry receives the first error before the retry. A successful
// retry clears the failure; a second failure is returned as the step error.
func clickWithRetry(click func() error, delay time.Duration, onRetry func(error)) error {
	err := click()
	if err == nil {
		return nil
	}
	if onRetry != nil {
		onRetry(err)
	}
	time.Sleep(delay)
	return click()
}

func (e *Executor) doAssert(page playwright.Page, step domain.ActionStep) error {
	locator := page.Locator(step.Selector)

	switch step.Kind {
	case domain.AssertVisible:
		return locator.First().WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateVisible,
		})
	case domain.AssertInvisible:
		return locator.First().WaitFor(playwright.LocatorWaitForOptions{
			State: playwright.WaitForSelectorStateHidden,
		})
	case domain.AssertTextContains, domain.AssertTextEquals, domain.AssertTextRegex:
		text, err := locator.First().TextContent()
		if err != nil {
			return err
		}
		return checkText(step.Kind, text, step.ValueString())
	case domain.AssertCountEquals, domain.AssertCountAtLeast:
		expected, err := CountValue(step.Value)
		if err != nil {
			return err
		}
		if expected > 0 {
			// Give the list a chance to render before counting.
			_ = locator.First().WaitFor(playwright.LocatorWaitForOptions{
				State: playwright.WaitForSelectorStateVisible,
			})
		}
		actual, err := locator.Count()
		if err != nil {
			return err
		}
		return checkCount(step.Kind, actual, expected)
	default:
		return fmt.Errorf("unknown assertion kind %q", step.Kind)
	}
}

func checkText(kind, text, expected string) error {
	switch kind {
	case domain.AssertTextContains:
		if !strings.Contains(text, expected) {
			return fmt.Errorf("断言失败：期望文本包含 %q，实际为 %q", expected, strings.TrimSpace(text))
		}
	case domain.AssertTextEquals:
		if strings.TrimSpace(text) != expected {
			return fmt.Errorf("断言失败：期望文本等于 %q，实际为 %q", expected, strings.TrimSpace(text))
		}
	case domain.AssertTextRegex:
		re, err := regexp.Compile(expected)
		if err != nil {
			return fmt.Errorf("断言失败：无效的正则表达式 %q", expected)
		}
		if !re.MatchString(text) {
			return fmt.Errorf("断言失败：文本 %q 不匹配 %q", strings.TrimSpace(text), expected)
		}
	}
	return nil
}

func checkCount(kind string, actual, expected int) error {
	switch kind {
	case domain.AssertCountEquals:
		if actual != expected {
			return fmt.Errorf("断言失败：期望元素数量等于 %d，实际为 %d", expected, actual)
		}
	case domain.AssertCountAtLeast:
		if actual < expected {
			return fmt.Errorf("断言失败：期望元素数量不少于 %d，实际为 %d", expected, actual)
		}
	}
	return nil
}

func (e *Executor) captureStepState(page playwright.Page, result *domain.StepResult) {
	result.CurrentURL = page.URL()
	if title, err := page.Title(); err == nil {
		result.PageTitle = title
	}
	if content, err := page.Content(); err == nil {
		result.DomSizeBytes = len(content)
	}
}

func (e *Executor) captureScreenshot(page playwright.Page, dir string, index int, result *domain.StepResult) {
	switch e.cfg.Screenshots {
	case "all":
	case "on-failure":
		if result.Status != domain.StatusFailed {
			return
		}
	default:
		return
	}

	path := filepath.Join(dir, "steps", fmt.Sprintf("%02d.png", index+1))
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Path:     playwright.String(path),
	}); err != nil {
		e.logger.Warn("screenshot failed", zap.Int("step", index+1), zap.Error(err))
		return
	}
	result.Screenshot = path
}

// ResolveURL joins a possibly relative step URL onto the plan's base URL.
func ResolveURL(base, ref string) string {
	if ref == "" {
		return base
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// NormalizeStepError hides raw locator timeouts behind a fixed message.
func NormalizeStepError(err error) string {
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return timeoutMessage
	}
	return err.Error()
}

// CountValue parses the count assertion's value, which arrives as a JSON
// number or a digit string.
func CountValue(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n != float64(int(n)) {
			return 0, fmt.Errorf("断言失败：数量必须是非负整数，得到 %v", v)
		}
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil || parsed < 0 {
			return 0, fmt.Errorf("断言失败：数量必须是非负整数，得到 %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("断言失败：数量必须是非负整数，得到 %v", v)
	}
}

var testIDSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeTestID makes a test id safe for directory names.
func SanitizeTestID(id string) string {
	out := testIDSanitizer.ReplaceAllString(id, "-")
	out = strings.Trim(out, "-")
	if out == "" {
		return "plan"
	}
	return out
}
