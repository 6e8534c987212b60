package parser

import "regexp"

var (
	prevLineEnd      = regexp.MustCompile(`\r?\n\s*?$`)
	prevLineEndFirst = regexp.MustCompile(`(^|\r?\n)\s*?$`)
	nextLineStart    = regexp.MustCompile(`^\s*?\r?\n`)
	nextLineLast     = regexp.MustCompile(`^\s*?(\r?\n|$)`)

	trailingSpace = regexp.MustCompile(`[ \t]+$`)
	trailingAll   = regexp.MustCompile(`\s+$`)
	leadingLine   = regexp.MustCompile(`^[ \t]*\r?\n?`)
	leadingAll    = regexp.MustCompile(`^\s+`)
	indentCapture = regexp.MustCompile(`([ \t]+)$`)
)

// stripWhitespace applies `~` control and, unless ignoreStandalone is set,
// removes the surrounding whitespace of tags that sit alone on a line.
// Standalone detection looks at the original content, so earlier trimming
// never changes what counts as standalone.
func stripWhitespace(items []item, ignoreStandalone bool) {
	for i, it := range items {
		t := it.tag
		if t == nil || t.kind == tagRaw {
			continue
		}
		if t.stripLeft && i > 0 && items[i-1].content != nil {
			c := items[i-1].content
			c.value = trailingAll.ReplaceAllString(c.value, "")
		}
		if t.stripRight && i+1 < len(items) && items[i+1].content != nil {
			c := items[i+1].content
			c.value = leadingAll.ReplaceAllString(c.value, "")
		}
	}
	if ignoreStandalone {
		return
	}
	for i, it := range items {
		t := it.tag
		if t == nil || !t.kind.standalone() {
			continue
		}
		if !prevWhitespace(items, i) || !nextWhitespace(items, i) {
			continue
		}
		if i > 0 && items[i-1].content != nil {
			c := items[i-1].content
			if t.kind == tagPartial {
				if m := indentCapture.FindStringSubmatch(c.original); m != nil {
					t.indent = m[1]
				}
			}
			c.value = trailingSpace.ReplaceAllString(c.value, "")
		}
		if i+1 < len(items) && items[i+1].content != nil {
			c := items[i+1].content
			c.value = leadingLine.ReplaceAllString(c.value, "")
		}
	}
}

func prevWhitespace(items []item, i int) bool {
	if i == 0 {
		return true
	}
	prev := items[i-1].content
	if prev == nil {
		return false
	}
	if i-2 >= 0 {
		return prevLineEnd.MatchString(prev.original)
	}
	return prevLineEndFirst.MatchString(prev.original)
}

func nextWhitespace(items []item, i int) bool {
	if i+1 >= len(items) {
		return true
	}
	next := items[i+1].content
	if next == nil {
		return false
	}
	if i+2 < len(items) {
		return nextLineStart.MatchString(next.original)
	}
	return nextLineLast.MatchString(next.original)
}
