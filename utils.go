package handlebars

import (
	"strings"
)

// EscapeExpression replaces the characters that are unsafe in HTML text and
// attribute values with entities. Strings that need no escaping are returned
// without allocating.
func EscapeExpression(s string) string {
	needsEscape := false
	for i := 0; i < len(s); i++ {
		if escapeByte(s[i]) != "" {
			needsEscape = true
			break
		}
	}
	if !needsEscape {
		return s
	}

	sb := stringBuilderPool.Get().(*strings.Builder)
	sb.Reset()
	defer stringBuilderPool.Put(sb)

	sb.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if e := escapeByte(c); e != "" {
			sb.WriteString(e)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func escapeByte(c byte) string {
	switch c {
	case '&':
		return "&amp;"
	case '<':
		return "&lt;"
	case '>':
		return "&gt;"
	case '"':
		return "&quot;"
	case '\'':
		return "&#x27;"
	case '`':
		return "&#x60;"
	case '=':
		return "&#x3D;"
	}
	return ""
}

// indentLines prefixes every line of s with indent. A trailing empty line is
// left alone so the partial's final newline does not pick up an indent.
func indentLines(s, indent string) string {
	if indent == "" || s == "" {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + len(indent)*4)
	for s != "" {
		sb.WriteString(indent)
		i := strings.IndexByte(s, '\n')
		if i == -1 {
			sb.WriteString(s)
			break
		}
		sb.WriteString(s[:i+1])
		s = s[i+1:]
	}
	return sb.String()
}
