// Package decoder turns a line-oriented upstream stream into text deltas.
//
// Lines end in "\n" and may carry a "data:" prefix. A line equal to [DONE],
// with or without the prefix, ends the sequence. Every other line is decoded
// best-effort: known JSON shapes yield their text, anything else passes
// through verbatim.
// Decoding itself never fails; only a frame cut off at end of input is
// reported, as ErrTruncatedFrame.
package decoder

import (
	"bytes"
	"errors"
	"strings"

	"chat-relay/internal/envelope"
	"chat-relay/internal/models"
)

// DoneSentinel terminates a stream.
const DoneSentinel = "[DONE]"

// ErrTruncatedFrame indicates the input ended in the middle of a JSON frame.
var ErrTruncatedFrame = errors.New("truncated frame at end of stream")

var (
	dataPrefix    = []byte("data:")
	framingFields = [][]byte{[]byte("event:"), []byte("id:"), []byte("retry:")}
)

// Frame is one decoded line.
type Frame struct {
	Envelope envelope.Envelope
	// Data reports whether the line was framed with a data: prefix.
	Data bool
}

// Delta returns the frame's text as a Delta. Frames without text yield none.
func (f Frame) Delta() (models.Delta, bool) {
	text, ok := f.Envelope.Text()
	if !ok || text == "" {
		return models.Delta{}, false
	}
	return models.Delta{Text: text}, true
}

// Decoder owns the carry-over buffer for one stream. It is not safe for concurrent use.
type Decoder struct {
	carry []byte
	done  bool
}

// New returns an empty decoder.
func New() *Decoder {
	return &Decoder{}
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed appends chunk to the carry-over buffer and decodes every complete line.
// A trailing partial line is kept until a later Feed or Finish completes it.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done {
		return nil
	}
	d.carry = append(d.carry, chunk...)

	var frames []Frame
	consumed := 0
	for !d.done {
		i := bytes.IndexByte(d.carry[consumed:], '\n')
		if i < 0 {
			break
		}
		line := d.carry[consumed : consumed+i]
		consumed += i + 1
		if frame, ok := d.decodeLine(line); ok {
			frames = append(frames, frame)
		}
	}

	switch {
	case d.done:
		d.carry = nil
	case consumed > 0:
		d.carry = append([]byte(nil), d.carry[consumed:]...)
	}
	return frames
}

// Finish flushes the carry-over buffer at end of input. An unterminated final
// line is decoded when complete; a data frame holding a cut-off JSON value
// yields ErrTruncatedFrame.
func (d *Decoder) Finish() ([]Frame, error) {
	line := d.carry
	d.carry = nil
	if d.done || len(bytes.TrimSpace(line)) == 0 {
		return nil, nil
	}

	frame, ok := d.decodeLine(line)
	if !ok {
		return nil, nil
	}
	if frame.Data && frame.Envelope.Kind == envelope.KindRaw && looksLikeJSON(frame.Envelope.Raw) {
		return nil, ErrTruncatedFrame
	}
	return []Frame{frame}, nil
}

func (d *Decoder) decodeLine(line []byte) (Frame, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 || isFramingField(line) {
		return Frame{}, false
	}

	payload, data := bytes.CutPrefix(line, dataPrefix)
	trimmed := bytes.TrimSpace(payload)
	if string(trimmed) == DoneSentinel {
		d.done = true
		return Frame{}, false
	}
	if !data {
		return Frame{Envelope: envelope.Raw(string(line))}, true
	}
	if len(trimmed) == 0 {
		return Frame{}, false
	}
	payload = bytes.TrimPrefix(payload, []byte(" "))
	return Frame{Envelope: envelope.Classify(payload), Data: true}, true
}

func isFramingField(line []byte) bool {
	if line[0] == ':' {
		return true
	}
	for _, field := range framingFields {
		if bytes.HasPrefix(line, field) {
			return true
		}
	}
	return false
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
