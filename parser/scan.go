package parser

import (
	"sort"
	"strings"

	"github.com/oarkflow/handlebars/ast"
)

const (
	leftDelim  = "{{"
	rightDelim = "}}"
)

type tagKind int

const (
	tagMustache tagKind = iota
	tagUnescaped
	tagBlock
	tagInverse
	tagClose
	tagElse
	tagPartial
	tagPartialBlock
	tagDecoratorBlock
	tagDecorator
	tagComment
	tagRaw
)

var tagNames = map[tagKind]string{
	tagMustache:       "mustache",
	tagUnescaped:      "unescaped mustache",
	tagBlock:          "block",
	tagInverse:        "inverse block",
	tagClose:          "close",
	tagElse:           "else",
	tagPartial:        "partial",
	tagPartialBlock:   "partial block",
	tagDecoratorBlock: "decorator block",
	tagDecorator:      "decorator",
	tagComment:        "comment",
	tagRaw:            "raw block",
}

func (k tagKind) String() string { return tagNames[k] }

// standalone reports whether a tag of this kind may own a whole line.
func (k tagKind) standalone() bool {
	switch k {
	case tagBlock, tagInverse, tagClose, tagElse, tagPartial, tagPartialBlock, tagDecoratorBlock, tagComment:
		return true
	}
	return false
}

type tag struct {
	kind       tagKind
	body       string // inner text after the sigil, trimmed
	stripLeft  bool
	stripRight bool
	indent     string
	raw        string // content of a raw block
	loc        ast.Loc
}

type item struct {
	content *content
	tag     *tag
}

type content struct {
	value    string
	original string
	loc      ast.Loc
}

// scanner splits template source into content runs and tags.
type scanner struct {
	src        string
	i          int
	lineStarts []int
	items      []item
}

func newScanner(src string) *scanner {
	s := &scanner{src: src, lineStarts: []int{0}}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			s.lineStarts = append(s.lineStarts, i+1)
		}
	}
	return s
}

func (s *scanner) eof() bool { return s.i >= len(s.src) }

func (s *scanner) loc(off int) ast.Loc {
	line := sort.Search(len(s.lineStarts), func(i int) bool { return s.lineStarts[i] > off }) - 1
	return ast.Loc{Line: line + 1, Column: off - s.lineStarts[line] + 1}
}

func (s *scanner) errorf(off int, format string, args ...any) error {
	return newError(s.loc(off), format, args...)
}

func (s *scanner) addContent(text string, off int) {
	if text == "" {
		return
	}
	if n := len(s.items); n > 0 && s.items[n-1].content != nil {
		c := s.items[n-1].content
		c.value += text
		c.original += text
		return
	}
	s.items = append(s.items, item{content: &content{value: text, original: text, loc: s.loc(off)}})
}

func (s *scanner) scan() ([]item, error) {
	for !s.eof() {
		start := strings.Index(s.src[s.i:], leftDelim)
		if start == -1 {
			s.addContent(s.src[s.i:], s.i)
			s.i = len(s.src)
			break
		}
		at := s.i + start
		if at > 0 && s.src[at-1] == '\\' {
			if at > 1 && s.src[at-2] == '\\' {
				// `\\{{` is a literal backslash followed by a real tag
				s.addContent(s.src[s.i:at-1], s.i)
			} else {
				s.addContent(s.src[s.i:at-1], s.i)
				end := strings.Index(s.src[at:], rightDelim)
				if end == -1 {
					s.addContent(s.src[at:], at)
					s.i = len(s.src)
					break
				}
				s.addContent(s.src[at:at+end+len(rightDelim)], at)
				s.i = at + end + len(rightDelim)
				continue
			}
		} else {
			s.addContent(s.src[s.i:at], s.i)
		}
		s.i = at
		t, err := s.scanTag()
		if err != nil {
			return nil, err
		}
		s.items = append(s.items, item{tag: t})
	}
	return s.items, nil
}

func (s *scanner) scanTag() (*tag, error) {
	at := s.i
	if strings.HasPrefix(s.src[at:], "{{{{") {
		return s.scanRaw()
	}
	p := at + len(leftDelim)
	t := &tag{loc: s.loc(at)}
	if p < len(s.src) && s.src[p] == '~' {
		t.stripLeft = true
		p++
	}
	rest := s.src[p:]
	switch {
	case strings.HasPrefix(rest, "!--"):
		end := strings.Index(rest, "--}}")
		endTilde := strings.Index(rest, "--~}}")
		if end == -1 && endTilde == -1 {
			return nil, s.errorf(at, "unterminated comment")
		}
		if endTilde != -1 && (end == -1 || endTilde < end) {
			t.stripRight = true
			t.kind, t.body = tagComment, rest[3:endTilde]
			s.i = p + endTilde + len("--~}}")
		} else {
			t.kind, t.body = tagComment, rest[3:end]
			s.i = p + end + len("--}}")
		}
		return t, nil
	case strings.HasPrefix(rest, "!"):
		end := strings.Index(rest, rightDelim)
		if end == -1 {
			return nil, s.errorf(at, "unterminated comment")
		}
		body := rest[1:end]
		if strings.HasSuffix(body, "~") {
			t.stripRight = true
			body = body[:len(body)-1]
		}
		t.kind, t.body = tagComment, body
		s.i = p + end + len(rightDelim)
		return t, nil
	case strings.HasPrefix(rest, "{"):
		end, err := s.findClose(p+1, "}}}")
		if err != nil {
			return nil, err
		}
		body := s.src[p+1 : end]
		if strings.HasSuffix(body, "~") {
			t.stripRight = true
			body = body[:len(body)-1]
		}
		t.kind, t.body = tagUnescaped, fastTrim(body)
		s.i = end + len("}}}")
		return t, nil
	}

	end, err := s.findClose(p, rightDelim)
	if err != nil {
		return nil, err
	}
	body := s.src[p:end]
	s.i = end + len(rightDelim)
	if strings.HasSuffix(body, "~") {
		t.stripRight = true
		body = body[:len(body)-1]
	}
	body = fastTrim(body)
	switch {
	case strings.HasPrefix(body, "#>"):
		t.kind, body = tagPartialBlock, body[2:]
	case strings.HasPrefix(body, "#*"):
		t.kind, body = tagDecoratorBlock, body[2:]
	case strings.HasPrefix(body, "#"):
		t.kind, body = tagBlock, body[1:]
	case strings.HasPrefix(body, "^"):
		t.kind, body = tagInverse, body[1:]
		if fastTrim(body) == "" {
			t.kind = tagElse
		}
	case strings.HasPrefix(body, "/"):
		t.kind, body = tagClose, body[1:]
	case strings.HasPrefix(body, ">"):
		t.kind, body = tagPartial, body[1:]
	case strings.HasPrefix(body, "&"):
		t.kind, body = tagUnescaped, body[1:]
	case strings.HasPrefix(body, "*"):
		t.kind, body = tagDecorator, body[1:]
	case body == "else" || strings.HasPrefix(body, "else ") || strings.HasPrefix(body, "else\t") || strings.HasPrefix(body, "else\n"):
		t.kind, body = tagElse, body[len("else"):]
	default:
		t.kind = tagMustache
	}
	t.body = fastTrim(body)
	return t, nil
}

// findClose returns the offset of delim, skipping quoted strings.
func (s *scanner) findClose(from int, delim string) (int, error) {
	var quote byte
	for i := from; i < len(s.src); i++ {
		c := s.src[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if strings.HasPrefix(s.src[i:], delim) {
			return i, nil
		}
	}
	return 0, s.errorf(s.i, "unterminated tag")
}

func (s *scanner) scanRaw() (*tag, error) {
	at := s.i
	end := strings.Index(s.src[at:], "}}}}")
	if end == -1 {
		return nil, s.errorf(at, "unterminated raw block")
	}
	body := fastTrim(s.src[at+4 : at+end])
	name := body
	if sp := strings.IndexAny(body, " \t\n"); sp != -1 {
		name = body[:sp]
	}
	contentStart := at + end + 4
	closer := "{{{{/" + name + "}}}}"
	closeAt := strings.Index(s.src[contentStart:], closer)
	if closeAt == -1 {
		return nil, s.errorf(at, "unterminated raw block %q", name)
	}
	s.i = contentStart + closeAt + len(closer)
	return &tag{
		kind: tagRaw,
		body: body,
		raw:  s.src[contentStart : contentStart+closeAt],
		loc:  s.loc(at),
	}, nil
}

func fastTrim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
	})
}
