// Package envelope classifies upstream JSON payloads into a closed set of
// known response shapes so callers can switch on the shape exhaustively.
package envelope

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Kind tags the recognised payload shape.
type Kind int

const (
	// KindRaw is passed through verbatim: it is not JSON, or was not framed as data.
	KindRaw Kind = iota
	// KindScalar is valid JSON that is not an object. Its raw text passes through.
	KindScalar
	// KindOutputText carries a top-level "output_text" field.
	KindOutputText
	// KindSegments carries a top-level "output" list of segments.
	KindSegments
	// KindChoice carries a choice-style field: choices[0].delta.content,
	// choices[0].text, choices[0].message.content, or a top-level "delta".
	KindChoice
	// KindUnrecognized is a JSON object with none of the known text fields.
	KindUnrecognized
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindScalar:
		return "scalar"
	case KindOutputText:
		return "output_text"
	case KindSegments:
		return "segments"
	case KindChoice:
		return "choice"
	case KindUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Envelope is one classified payload.
type Envelope struct {
	Kind Kind
	Raw  string
	text string
}

// Text returns the text carried by the payload. Unrecognized objects carry none.
func (e Envelope) Text() (string, bool) {
	switch e.Kind {
	case KindOutputText, KindSegments, KindChoice:
		return e.text, true
	case KindRaw, KindScalar:
		return e.Raw, true
	case KindUnrecognized:
		return "", false
	default:
		return "", false
	}
}

// Raw wraps text that should pass through unchanged.
func Raw(text string) Envelope {
	return Envelope{Kind: KindRaw, Raw: text}
}

// Classify inspects data and returns its shape. The first matching shape wins,
// in the order output_text, output segments, choice-style field.
func Classify(data []byte) Envelope {
	raw := string(data)
	if !gjson.ValidBytes(data) {
		return Raw(raw)
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Envelope{Kind: KindScalar, Raw: raw}
	}

	if v := doc.Get("output_text"); v.Exists() {
		if text, ok := stringOrList(v); ok {
			return Envelope{Kind: KindOutputText, Raw: raw, text: text}
		}
	}

	if v := doc.Get("output"); v.IsArray() {
		return Envelope{Kind: KindSegments, Raw: raw, text: flattenSegments(v)}
	}

	if text, ok := choiceText(doc); ok {
		return Envelope{Kind: KindChoice, Raw: raw, text: text}
	}

	return Envelope{Kind: KindUnrecognized, Raw: raw}
}

func choiceText(doc gjson.Result) (string, bool) {
	if choices := doc.Get("choices"); choices.IsArray() {
		first := choices.Get("0")
		for _, path := range []string{"delta.content", "text", "message.content"} {
			if v := first.Get(path); v.Exists() {
				if text, ok := stringOrList(v); ok {
					return text, true
				}
			}
		}
		// A choice without content, e.g. the final chunk carrying finish_reason.
		return "", true
	}

	if v := doc.Get("delta"); v.Exists() {
		return stringOrList(v)
	}
	return "", false
}

// stringOrList accepts a string or a list of strings, joining the latter.
func stringOrList(v gjson.Result) (string, bool) {
	switch {
	case v.Type == gjson.String:
		return v.Str, true
	case v.Type == gjson.Null:
		return "", true
	case v.IsArray():
		var b strings.Builder
		ok := true
		v.ForEach(func(_, item gjson.Result) bool {
			if item.Type != gjson.String {
				ok = false
				return false
			}
			b.WriteString(item.Str)
			return true
		})
		return b.String(), ok
	default:
		return "", false
	}
}

func flattenSegments(output gjson.Result) string {
	var b strings.Builder
	output.ForEach(func(_, segment gjson.Result) bool {
		if segment.Type == gjson.String {
			b.WriteString(segment.Str)
			return true
		}
		collectText(segment, &b)
		return true
	})
	return b.String()
}

// collectText appends every nested "text" string in document order.
func collectText(node gjson.Result, b *strings.Builder) {
	node.ForEach(func(key, value gjson.Result) bool {
		if key.Str == "text" && value.Type == gjson.String {
			b.WriteString(value.Str)
			return true
		}
		if value.IsObject() || value.IsArray() {
			collectText(value, b)
		}
		return true
	})
}
