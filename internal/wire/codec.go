// Package wire implements the line-oriented REQ/RES frame codec that rides
// on top of any reliable byte stream (see internal/socket). Tokenization
// rules: whitespace separates tokens, and a token starting with a double
// quote runs to the next unescaped double quote. Parse is total and never
// panics; encoding is the caller's responsibility for any field that may
// itself contain whitespace.
package wire

import (
	"strconv"
	"strings"

	"github.com/ocx/cachecluster/internal/cacheerr"
)

// Kind distinguishes a parsed line.
type Kind int

const (
	KindOther Kind = iota
	KindReq
	KindRes
)

// Req is a parsed REQ frame.
type Req struct {
	RID     string
	Action  string
	Payload string
}

// Res is a parsed RES frame.
type Res struct {
	RID     string
	Code    int
	Payload string
}

// Line is the result of parsing one input line.
type Line struct {
	Kind Kind
	Req  *Req
	Res  *Res
	Raw  string
}

// Parse tokenizes a single line (with or without trailing \r\n) into a Req,
// a Res, or Other. It never returns an error for a line that isn't headed by
// REQ/RES -- such lines are Other and reserved for future handshake use.
// It does return a BadMessage error when a line announces itself as REQ/RES
// but doesn't carry the three required header tokens.
func Parse(raw string) (*Line, error) {
	s := strings.TrimRight(raw, "\r\n")
	trimmed := strings.TrimLeft(s, " \t")
	if trimmed == "" {
		return &Line{Kind: KindOther, Raw: s}, nil
	}

	tok1, rest, ok := NextToken(s)
	if !ok {
		return &Line{Kind: KindOther, Raw: s}, nil
	}
	if tok1 != "REQ" && tok1 != "RES" {
		return &Line{Kind: KindOther, Raw: s}, nil
	}

	tok2, rest2, ok2 := NextToken(rest)
	tok3, rest3, ok3 := NextToken(rest2)
	if !ok2 || !ok3 {
		return nil, cacheerr.New(cacheerr.KindBadMessage, "frame has fewer than three header tokens")
	}

	payload := stripOuterQuotes(strings.TrimLeft(rest3, " \t"))

	if tok1 == "REQ" {
		return &Line{Kind: KindReq, Raw: s, Req: &Req{RID: tok2, Action: tok3, Payload: payload}}, nil
	}

	code, err := strconv.Atoi(tok3)
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.KindBadMessage, "RES code is not an integer", err)
	}
	return &Line{Kind: KindRes, Raw: s, Res: &Res{RID: tok2, Code: code, Payload: payload}}, nil
}

// EncodeReq renders a REQ frame. payload is written verbatim after the
// header; use Quote to escape a single field that may contain whitespace or
// quotes, or compose a multi-field payload (as PUT does) by hand.
func EncodeReq(rid, action, payload string) []byte {
	return encodeFrame("REQ", rid, action, payload)
}

// EncodeRes renders a RES frame. code is written as a decimal integer.
func EncodeRes(rid string, code int, payload string) []byte {
	return encodeFrame("RES", rid, strconv.Itoa(code), payload)
}

func encodeFrame(kind, rid, middle, payload string) []byte {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte(' ')
	b.WriteString(rid)
	b.WriteByte(' ')
	b.WriteString(middle)
	if payload != "" {
		b.WriteByte(' ')
		b.WriteString(payload)
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// NextToken consumes leading whitespace then one token from s: either a
// quoted run (backslash-escaped, closing quote stripped) or a bare
// whitespace-delimited run. ok is false only when s has no more tokens.
func NextToken(s string) (tok string, rest string, ok bool) {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i >= len(s) {
		return "", "", false
	}
	if s[i] == '"' {
		i++
		var b strings.Builder
		for i < len(s) {
			c := s[i]
			if c == '\\' && i+1 < len(s) {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			if c == '"' {
				i++
				break
			}
			b.WriteByte(c)
			i++
		}
		return b.String(), s[i:], true
	}
	start := i
	for i < len(s) && !isSpace(s[i]) {
		i++
	}
	return s[start:i], s[i:], true
}

// Quote wraps s in a double-quoted token, escaping backslashes and quotes,
// suitable for use as a single payload field (a value that may contain
// whitespace).
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' || c == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// NeedsQuoting reports whether a standalone field must be Quote()d to
// survive tokenization (it contains whitespace or a quote character).
func NeedsQuoting(s string) bool {
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) || s[i] == '"' {
			return true
		}
	}
	return false
}

// QuoteField quotes s only if it needs it, otherwise returns it unchanged.
func QuoteField(s string) string {
	if NeedsQuoting(s) {
		return Quote(s)
	}
	return s
}

func stripOuterQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner, rest, ok := NextToken(s)
		if ok && rest == "" {
			return inner
		}
	}
	return s
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}
