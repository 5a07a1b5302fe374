package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/dsl"
)

// RE2 has no backreferences, so the quote styles are spelled out as
// alternatives: group 1 single-quoted, group 2 double-quoted, group 3 bare.
var (
	containsPattern = regexp.MustCompile(`:contains\(\s*(?:'([^']*)'|"([^"]*)"|([^)'"][^)]*?))\s*\)`)
	hasTextPattern  = regexp.MustCompile(`:has-text\(\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')\s*\)`)
	imgPattern      = regexp.MustCompile(`(^|[\s>+~(])img\b`)
	tokenPattern    = regexp.MustCompile(`[\pL\pN_]{2,}`)
)

// SanitizeSelector rewrites legacy :contains('X') filters into Playwright's
// :has-text("X"), escaping embedded quotes.
func SanitizeSelector(selector string) string {
	return containsPattern.ReplaceAllStringFunc(selector, func(m string) string {
		sub := containsPattern.FindStringSubmatch(m)
		text := sub[1]
		if text == "" {
			text = sub[2]
		}
		if text == "" {
			text = sub[3]
		}
		text = strings.ReplaceAll(text, `"`, `\"`)
		return fmt.Sprintf(`:has-text("%s")`, text)
	})
}

// AppendHasText suffixes selector with a :has-text filter unless one is
// already present.
func AppendHasText(selector, value string) string {
	if value == "" || strings.Contains(selector, ":has-text") {
		return selector
	}
	escaped := strings.ReplaceAll(value, `"`, `\"`)
	return fmt.Sprintf(`%s:has-text("%s")`, selector, escaped)
}

// StripHasText removes any :has-text filter from selector.
func StripHasText(selector string) string {
	return hasTextPattern.ReplaceAllString(selector, "")
}

// IsImageSelector reports whether the selector anchors on an img tag.
func IsImageSelector(selector string) bool {
	return imgPattern.MatchString(selector)
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		out[tok] = true
	}
	return out
}

func containsAny(haystack string, words []string) bool {
	h := strings.ToLower(haystack)
	for _, w := range words {
		if strings.Contains(h, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func aliasText(a domain.SiteAlias) string {
	return a.Name + " " + a.Description + " " + a.Role
}

func pathSegments(selector string) map[string]bool {
	out := make(map[string]bool)
	for _, seg := range strings.FieldsFunc(StripHasText(selector), func(r rune) bool {
		return r == '>' || r == ' ' || r == '\t'
	}) {
		if seg != "" {
			out[seg] = true
		}
	}
	return out
}

func sharedSegments(a, b string) int {
	sa, sb := pathSegments(a), pathSegments(b)
	n := 0
	for seg := range sa {
		if sb[seg] {
			n++
		}
	}
	return n
}

// postProcessor carries the state threaded across steps of one plan.
type postProcessor struct {
	vocab        *Vocabulary
	aliases      map[string]domain.SiteAlias
	lastValue    string
	valueByAlias map[string]string
}

// PostProcess normalizes a compiled plan in place: sanitizes selectors,
// snaps them to profile aliases, threads textual context between steps,
// retargets text-clicks to their buy button, and enforces the selector
// policy. The returned error carries SCHEMA_VIOLATION details when a step
// survives in an unacceptable state.
func PostProcess(plan *domain.ActionPlan, profile *domain.SiteProfile, vocab *Vocabulary) error {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	pp := &postProcessor{
		vocab:        vocab,
		aliases:      map[string]domain.SiteAlias{},
		valueByAlias: map[string]string{},
	}
	if profile != nil {
		pp.aliases = profile.AllAliases()
	}

	for i := range plan.Steps {
		pp.processStep(&plan.Steps[i])
	}
	return pp.finalCheck(plan)
}

func (pp *postProcessor) processStep(step *domain.ActionStep) {
	var matched string
	if step.Selector != "" {
		step.Selector = SanitizeSelector(step.Selector)
		matched = pp.snapToProfile(step)
	}

	switch step.T {
	case domain.StepAssert:
		pp.processAssert(step, matched)
	case domain.StepClick:
		pp.processClick(step, matched)
	}
}

// snapToProfile aligns the step's selector with the best-matching profile
// alias and returns the alias name, or "" when nothing matched.
func (pp *postProcessor) snapToProfile(step *domain.ActionStep) string {
	bare := StripHasText(step.Selector)

	// Exact or containing match wins outright. Exact beats containing, and
	// among containing matches the longest alias selector wins, so the
	// choice does not depend on map order.
	containing := ""
	for name, alias := range pp.aliases {
		if alias.Selector == "" {
			continue
		}
		if bare == alias.Selector {
			return name
		}
		if strings.Contains(bare, alias.Selector) {
			if containing == "" || len(alias.Selector) > len(pp.aliases[containing].Selector) ||
				(len(alias.Selector) == len(pp.aliases[containing].Selector) && name < containing) {
				containing = name
			}
		}
	}
	if containing != "" {
		return containing
	}

	stepTokens := tokenize(bare)
	bestScore := 0
	bestName := ""
	for name, alias := range pp.aliases {
		score := pp.scoreAlias(step, stepTokens, alias)
		if score > bestScore || (score == bestScore && score > 0 && name < bestName) {
			bestScore = score
			bestName = name
		}
	}
	if bestScore >= 3 {
		alias := pp.aliases[bestName]
		suffix := ""
		if m := hasTextPattern.FindString(step.Selector); m != "" {
			suffix = m
		}
		step.Selector = alias.Selector + suffix
		return bestName
	}
	return ""
}

func (pp *postProcessor) scoreAlias(step *domain.ActionStep, stepTokens map[string]bool, alias domain.SiteAlias) int {
	aliasTokens := tokenize(aliasText(alias) + " " + alias.Selector)
	score := 0
	for tok := range stepTokens {
		if aliasTokens[tok] {
			score++
		}
	}

	hinted := containsAny(aliasText(alias), pp.vocab.forStep(step.T))
	switch step.T {
	case domain.StepFill:
		if hinted {
			score += 4
		}
	case domain.StepClick:
		if hinted || containsAny(aliasText(alias), pp.vocab.Item) {
			score += 3
		}
		// The LLM often targets the product name when it means the buy
		// button next to it.
		if containsAny(StripHasText(step.Selector), pp.vocab.Text) && pp.isBuyButton(alias) {
			score += 2
		}
	case domain.StepAssert:
		if hinted {
			score += 2
		}
		if containsAny(alias.Role, []string{"文本", "标题"}) {
			score++
		}
	}
	return score
}

func (pp *postProcessor) isBuyButton(alias domain.SiteAlias) bool {
	return containsAny(aliasText(alias), pp.vocab.Buy)
}

func (pp *postProcessor) isList(alias domain.SiteAlias) bool {
	return containsAny(aliasText(alias), pp.vocab.List)
}

func (pp *postProcessor) processAssert(step *domain.ActionStep, matched string) {
	switch step.Kind {
	case domain.AssertTextContains:
		value := step.ValueString()
		if value == "" {
			pp.promoteAssert(step, matched)
			return
		}
		if !IsImageSelector(step.Selector) {
			step.Selector = AppendHasText(step.Selector, value)
		}
		pp.remember(matched, value)
	case domain.AssertVisible:
		if IsImageSelector(step.Selector) {
			// Images have no text: a visibility check carries neither a
			// value nor a :has-text filter.
			step.Value = nil
			step.Selector = StripHasText(step.Selector)
			return
		}
		// A visibility check on an alias we already saw text for is really
		// a containment check on that text.
		if matched != "" && step.ValueString() == "" {
			if v, ok := pp.valueByAlias[matched]; ok {
				step.Kind = domain.AssertTextContains
				step.Value = v
				step.Selector = AppendHasText(step.Selector, v)
			}
		}
	case domain.AssertCountEquals, domain.AssertCountAtLeast,
		domain.AssertInvisible, domain.AssertTextEquals, domain.AssertTextRegex:
	default:
		pp.promoteAssert(step, matched)
	}
}

// promoteAssert upgrades a bare assert to text_contains when a remembered
// value is available for its alias or from the previous steps.
func (pp *postProcessor) promoteAssert(step *domain.ActionStep, matched string) {
	value := pp.recall(matched)
	if value == "" {
		return
	}
	step.Kind = domain.AssertTextContains
	step.Value = value
	if !IsImageSelector(step.Selector) {
		step.Selector = AppendHasText(step.Selector, value)
	}
	pp.remember(matched, value)
}

func (pp *postProcessor) processClick(step *domain.ActionStep, matched string) {
	if step.ValueString() == "" {
		step.Value = nil
		if v := pp.recall(matched); v != "" {
			step.Value = v
		}
	}

	// A list container is not clickable as such; prefer its item alias.
	if matched != "" && pp.isList(pp.aliases[matched]) {
		if itemName := pp.findItemAlias(matched); itemName != "" {
			matched = itemName
			step.Selector = pp.aliases[itemName].Selector
		}
	}

	value := step.ValueString()
	suppress := IsImageSelector(step.Selector) ||
		(matched != "" && pp.isBuyButton(pp.aliases[matched]))
	if value != "" && !suppress {
		step.Selector = AppendHasText(step.Selector, value)
	}
	if suppress {
		step.Selector = StripHasText(step.Selector)
	}

	pp.retargetTextClick(step, matched)
}

// retargetTextClick moves a click off a text/title alias onto a sibling buy
// button that shares at least two selector path segments.
func (pp *postProcessor) retargetTextClick(step *domain.ActionStep, matched string) {
	if matched == "" {
		return
	}
	alias := pp.aliases[matched]
	if !containsAny(aliasText(alias), pp.vocab.Text) || pp.isBuyButton(alias) {
		return
	}
	for name, candidate := range pp.aliases {
		if name == matched || !pp.isBuyButton(candidate) {
			continue
		}
		if sharedSegments(alias.Selector, candidate.Selector) >= 2 {
			step.Selector = candidate.Selector
			return
		}
	}
}

func (pp *postProcessor) findItemAlias(listName string) string {
	list := pp.aliases[listName]
	for name, alias := range pp.aliases {
		if name == listName || !containsAny(aliasText(alias), pp.vocab.Item) {
			continue
		}
		if strings.HasPrefix(alias.Selector, list.Selector) || sharedSegments(list.Selector, alias.Selector) >= 1 {
			return name
		}
	}
	return ""
}

func (pp *postProcessor) remember(matched, value string) {
	pp.lastValue = value
	if matched != "" {
		pp.valueByAlias[matched] = value
	}
}

func (pp *postProcessor) recall(matched string) string {
	if matched != "" {
		if v, ok := pp.valueByAlias[matched]; ok {
			return v
		}
	}
	return pp.lastValue
}

var allowedAssertKinds = map[string]bool{
	domain.AssertVisible:      true,
	domain.AssertInvisible:    true,
	domain.AssertTextContains: true,
	domain.AssertTextEquals:   true,
	domain.AssertTextRegex:    true,
	domain.AssertCountEquals:  true,
	domain.AssertCountAtLeast: true,
}

func (pp *postProcessor) finalCheck(plan *domain.ActionPlan) error {
	for i, step := range plan.Steps {
		if frag := dsl.ForbiddenFragment(step.Selector); frag != "" {
			return domain.SchemaViolationError(
				fmt.Sprintf("/steps/%d/selector", i),
				fmt.Sprintf("selector contains forbidden fragment %q", frag))
		}
		if step.T == domain.StepFill && step.ValueString() == "" {
			return domain.SchemaViolationError(
				fmt.Sprintf("/steps/%d/value", i), "fill step requires a value")
		}
		if step.T == domain.StepAssert && !allowedAssertKinds[step.Kind] {
			return domain.SchemaViolationError(
				fmt.Sprintf("/steps/%d/kind", i),
				fmt.Sprintf("unknown assertion kind %q", step.Kind))
		}
	}
	return nil
}
