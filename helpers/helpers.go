// Package helpers is a stock helper library for handlebars templates.
//
//	tmpl, err := handlebars.Compile(src, handlebars.WithHelpers(helpers.Default()))
package helpers

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/goccy/go-json"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/oarkflow/handlebars"
)

type (
	Value   = handlebars.Value
	Options = handlebars.HelperOptions
)

// Default returns every stock helper by name. The map is fresh on each call.
func Default() map[string]handlebars.HelperFunc {
	return map[string]handlebars.HelperFunc{
		"upper":        Upper,
		"lower":        Lower,
		"trim":         Trim,
		"truncate":     Truncate,
		"join":         Join,
		"eq":           Eq,
		"ne":           Ne,
		"gt":           compare(func(c int) bool { return c > 0 }),
		"gte":          compare(func(c int) bool { return c >= 0 }),
		"lt":           compare(func(c int) bool { return c < 0 }),
		"lte":          compare(func(c int) bool { return c <= 0 }),
		"and":          And,
		"or":           Or,
		"not":          Not,
		"default":      DefaultTo,
		"json":         JSON,
		"slugify":      Slugify,
		"sanitize":     Sanitize,
		"formatNumber": FormatNumber,
		"calc":         Calc,
	}
}

// arg returns the i-th positional argument or Null.
func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return handlebars.Null
}

// ----------------------------- Strings --------------------------------------

func Upper(args []Value, _ *Options) (any, error) {
	return strings.ToUpper(arg(args, 0).String()), nil
}

func Lower(args []Value, _ *Options) (any, error) {
	return strings.ToLower(arg(args, 0).String()), nil
}

func Trim(args []Value, _ *Options) (any, error) {
	return strings.TrimSpace(arg(args, 0).String()), nil
}

// Truncate cuts its first argument to n runes: {{truncate title 20}}. An
// optional suffix hash argument is appended when text was cut.
func Truncate(args []Value, opts *Options) (any, error) {
	s := arg(args, 0).String()
	if len(args) < 2 {
		return s, nil
	}
	n, err := cast.ToIntE(args[1].Interface())
	if err != nil || n < 0 {
		return s, nil
	}
	r := []rune(s)
	if len(r) <= n {
		return s, nil
	}
	return string(r[:n]) + opts.HashValue("suffix").String(), nil
}

// Join concatenates a list with sep (default ", "): {{join tags " | "}}.
func Join(args []Value, _ *Options) (any, error) {
	sep := ", "
	if len(args) > 1 {
		sep = args[1].String()
	}
	list := arg(args, 0).List()
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = v.String()
	}
	return strings.Join(parts, sep), nil
}

// Slugify makes a URL slug: {{slugify "Hello World"}} is hello-world.
func Slugify(args []Value, _ *Options) (any, error) {
	return slug.Make(arg(args, 0).String()), nil
}

var ugcPolicy = sync.OnceValue(bluemonday.UGCPolicy)

// Sanitize strips unsafe markup and returns the rest unescaped, so
// {{sanitize comment}} keeps links and formatting but drops scripts.
func Sanitize(args []Value, _ *Options) (any, error) {
	return handlebars.SafeString(ugcPolicy().Sanitize(arg(args, 0).String())), nil
}

// JSON encodes its argument: {{{json user}}}. indent="  " pretty-prints.
func JSON(args []Value, opts *Options) (any, error) {
	v := arg(args, 0).Interface()
	var (
		b   []byte
		err error
	)
	if indent := opts.HashValue("indent"); !indent.IsNull() {
		b, err = json.MarshalIndent(v, "", indent.String())
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// ----------------------------- Logic ----------------------------------------

func Eq(args []Value, _ *Options) (any, error) {
	return equal(arg(args, 0), arg(args, 1)), nil
}

func Ne(args []Value, _ *Options) (any, error) {
	return !equal(arg(args, 0), arg(args, 1)), nil
}

// equal compares numerically when both sides convert to numbers.
func equal(a, b Value) bool {
	if a.Kind() == handlebars.NumberKind || b.Kind() == handlebars.NumberKind {
		fa, errA := cast.ToFloat64E(a.Interface())
		fb, errB := cast.ToFloat64E(b.Interface())
		if errA == nil && errB == nil {
			return fa == fb
		}
	}
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	return a.String() == b.String()
}

// compare orders numbers numerically and everything else as strings.
func compare(ok func(int) bool) handlebars.HelperFunc {
	return func(args []Value, _ *Options) (any, error) {
		a, b := arg(args, 0), arg(args, 1)
		fa, errA := cast.ToFloat64E(a.Interface())
		fb, errB := cast.ToFloat64E(b.Interface())
		if errA == nil && errB == nil {
			switch {
			case fa < fb:
				return ok(-1), nil
			case fa > fb:
				return ok(1), nil
			}
			return ok(0), nil
		}
		return ok(strings.Compare(a.String(), b.String())), nil
	}
}

// And is true when every argument is truthy.
func And(args []Value, _ *Options) (any, error) {
	for _, a := range args {
		if !a.Truthy() {
			return false, nil
		}
	}
	return len(args) > 0, nil
}

// Or returns the first truthy argument, or false.
func Or(args []Value, _ *Options) (any, error) {
	for _, a := range args {
		if a.Truthy() {
			return a, nil
		}
	}
	return false, nil
}

func Not(args []Value, _ *Options) (any, error) {
	return !arg(args, 0).Truthy(), nil
}

// DefaultTo returns its first argument unless it is falsy:
// {{default nickname "anonymous"}}.
func DefaultTo(args []Value, _ *Options) (any, error) {
	if v := arg(args, 0); v.Truthy() {
		return v, nil
	}
	return arg(args, 1), nil
}

// ----------------------------- Numbers --------------------------------------

// FormatNumber formats with a fixed number of decimals using decimal
// arithmetic: {{formatNumber price 2}}. sep="," groups thousands.
func FormatNumber(args []Value, opts *Options) (any, error) {
	d, err := toDecimal(arg(args, 0))
	if err != nil {
		return nil, err
	}
	places := int32(2)
	if len(args) > 1 {
		p, err := cast.ToInt32E(args[1].Interface())
		if err != nil {
			return nil, fmt.Errorf("formatNumber: places: %w", err)
		}
		places = p
	}
	s := d.StringFixed(places)
	if sep := opts.HashValue("sep"); !sep.IsNull() {
		s = group(s, sep.String())
	}
	return s, nil
}

func toDecimal(v Value) (decimal.Decimal, error) {
	switch v.Kind() {
	case handlebars.NumberKind:
		return decimal.NewFromFloat(v.Float()), nil
	case handlebars.NullKind:
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v.String()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("formatNumber: %q is not a number", v.String())
	}
	return d, nil
}

// group inserts sep between thousands of the integer part of s.
func group(s, sep string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteString(sep)
		}
		sb.WriteRune(r)
	}
	return sign + sb.String() + frac
}

// Calc evaluates an arithmetic expression over its hash arguments:
// {{calc "ceil(total / per)" total=items.length per=10}}. Numeric strings
// are converted to numbers.
func Calc(args []Value, opts *Options) (any, error) {
	src := arg(args, 0).String()
	env := map[string]any{
		"ceil":  math.Ceil,
		"floor": math.Floor,
		"round": math.Round,
		"abs":   math.Abs,
		"max":   math.Max,
		"min":   math.Min,
		"sqrt":  math.Sqrt,
		"pow":   math.Pow,
	}
	if opts != nil {
		opts.Hash.Range(func(k string, v Value) bool {
			if f, err := cast.ToFloat64E(v.Interface()); err == nil && v.Kind() == handlebars.StringKind {
				env[k] = f
			} else {
				env[k] = v.Interface()
			}
			return true
		})
	}

	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("calc: syntax error %q: %w", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("calc: %w", err)
	}
	return out, nil
}
