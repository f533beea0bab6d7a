package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

type locatorKind int

const (
	kindCSS locatorKind = iota
	kindXPath
)

// locator is a parsed selector. Plain strings are CSS; "xpath=" or a
// leading "//" selects XPath; "text=" matches clickable elements by text.
type locator struct {
	kind locatorKind
	expr string
}

func parseLocator(selector string) locator {
	s := strings.TrimSpace(selector)
	switch {
	case strings.HasPrefix(s, "xpath="):
		return locator{kind: kindXPath, expr: strings.TrimSpace(strings.TrimPrefix(s, "xpath="))}
	case strings.HasPrefix(s, "//"), strings.HasPrefix(s, "(//"):
		return locator{kind: kindXPath, expr: s}
	case strings.HasPrefix(s, "text="):
		text := strings.Trim(strings.TrimSpace(strings.TrimPrefix(s, "text=")), `"'`)
		return locator{kind: kindXPath, expr: textXPath(text)}
	default:
		return locator{kind: kindCSS, expr: s}
	}
}

func textXPath(text string) string {
	return fmt.Sprintf(
		"//*[self::button or self::a or self::input or @role='button'][contains(normalize-space(string(.)), %s) or contains(@value, %s) or contains(@aria-label, %s)]",
		xpathLiteral(text), xpathLiteral(text), xpathLiteral(text))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// jsLookup returns a JavaScript expression evaluating to the first match or null.
func (l locator) jsLookup() string {
	lit, _ := json.Marshal(l.expr)
	if l.kind == kindXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", lit)
	}
	return fmt.Sprintf("document.querySelector(%s)", lit)
}
