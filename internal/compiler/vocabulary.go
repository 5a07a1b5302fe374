// Package compiler turns natural-language test requests into validated
// action plans via an LLM repair loop and deterministic selector
// post-processing.
package compiler

// Vocabulary holds the word lists the post-processor uses to match step
// types to alias roles. The defaults mirror the bilingual UI vocabulary of
// the sites this system grew up on; callers may swap in their own.
type Vocabulary struct {
	// Click words mark button/link-like aliases.
	Click []string
	// Fill words mark input-like aliases.
	Fill []string
	// Assert words mark text/title/content aliases.
	Assert []string
	// Buy words mark purchase buttons, which never carry product text.
	Buy []string
	// Text words mark product-name/title aliases, the usual victims of the
	// clicked-the-text-instead-of-the-button bug.
	Text []string
	// List words mark list containers whose item alias should be clicked
	// instead.
	List []string
	// Item words mark the per-entry alias inside a list container.
	Item []string
}

// DefaultVocabulary returns the built-in word lists.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Click: []string{
			"button", "btn", "buy", "purchase", "click", "link", "submit", "confirm",
			"按钮", "购买", "点击", "提交", "确定", "buy_list", "buybtn",
		},
		Fill: []string{
			"input", "field", "textbox", "text", "search", "fill", "enter",
			"输入", "框", "文本框", "搜索", "填入",
		},
		Assert: []string{
			"title", "text", "label", "name", "content", "value", "price",
			"h1", "h2", "h3", "h4", "h5", "h6",
			"标题", "文本", "名称", "内容", "价格",
		},
		Buy:  []string{"buy", "purchase", "buybtn", "buy_list", "购买"},
		Text: []string{"text", "title", "name", "商品", "名称"},
		List: []string{"list", "列表"},
		Item: []string{"item", "link", "entry", "商品", "条目"},
	}
}

// forClick returns the words that mark click targets, including item/link
// hints used by the scorer's bonus.
func (v *Vocabulary) forStep(t string) []string {
	switch t {
	case "click":
		return v.Click
	case "fill":
		return v.Fill
	case "assert":
		return v.Assert
	default:
		return nil
	}
}
