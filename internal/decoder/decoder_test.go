package decoder

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deltas(frames []Frame) []string {
	var out []string
	for _, f := range frames {
		if d, ok := f.Delta(); ok {
			out = append(out, d.Text)
		}
	}
	return out
}

func TestDecoderOutputTextLines(t *testing.T) {
	d := New()
	frames := d.Feed([]byte("data: {\"output_text\":\"Hello\"}\n" +
		"data: {\"output_text\":\", world\"}\n" +
		"data: [DONE]\n"))

	assert.Equal(t, []string{"Hello", ", world"}, deltas(frames))
	assert.True(t, d.Done())

	rest, err := d.Finish()
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestDecoderIgnoresInputAfterDone(t *testing.T) {
	d := New()
	d.Feed([]byte("data: [DONE]\n"))
	assert.Empty(t, d.Feed([]byte("data: {\"output_text\":\"late\"}\n")))
}

func TestDecoderBuffersPartialLines(t *testing.T) {
	d := New()
	input := "data: {\"output_text\":\"Hel\"}\ndata: {\"output_text\":\"lo\"}\n"

	var got []string
	for i := 0; i < len(input); i++ {
		got = append(got, deltas(d.Feed([]byte{input[i]}))...)
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestDecoderPassesThroughUnknownLines(t *testing.T) {
	d := New()
	frames := d.Feed([]byte("plain text line\ndata: not json\ndata: 7\n"))

	assert.Equal(t, []string{"plain text line", "not json", "7"}, deltas(frames))
	require.Len(t, frames, 3)
	assert.False(t, frames[0].Data)
	assert.True(t, frames[1].Data)
}

func TestDecoderSkipsFramingAndBlankLines(t *testing.T) {
	d := New()
	frames := d.Feed([]byte(": keep-alive\r\nevent: response.output_text.delta\r\nid: 7\r\nretry: 100\r\n\r\n" +
		"data: {\"type\":\"response.output_text.delta\",\"delta\":\"ok\"}\r\n"))
	assert.Equal(t, []string{"ok"}, deltas(frames))
}

func TestDecoderDropsLifecycleEvents(t *testing.T) {
	d := New()
	frames := d.Feed([]byte("data: {\"type\":\"response.created\"}\ndata: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n"))
	assert.Len(t, frames, 2)
	assert.Equal(t, []string{"x"}, deltas(frames))
}

func TestDecoderFinishDecodesUnterminatedLine(t *testing.T) {
	d := New()
	assert.Empty(t, d.Feed([]byte("data: {\"output_text\":\"tail\"}")))

	frames, err := d.Finish()
	require.NoError(t, err)
	assert.Equal(t, []string{"tail"}, deltas(frames))
}

func TestDecoderFinishReportsTruncatedFrame(t *testing.T) {
	d := New()
	d.Feed([]byte("data: {\"output_text\":\"a\"}\ndata: {\"output_text\":\"b"))

	_, err := d.Finish()
	assert.ErrorIs(t, err, ErrTruncatedFrame)
}

// Concatenating the decoded deltas equals concatenating a line-by-line
// extraction, however the input is split across reads.
func TestDecoderIsOrderPreservingAcrossSplits(t *testing.T) {
	lines := []string{
		`data: {"output_text":"a"}`,
		`raw line`,
		`data: {"output":[{"content":[{"text":"b"},{"text":"c"}]}]}`,
		`data: {"choices":[{"delta":{"content":"d"}}]}`,
		`data: {"choices":[{"delta":{"content":["e","f"]}}]}`,
		`data: {broken`,
	}
	input := strings.Join(lines, "\n") + "\n"

	var want strings.Builder
	for _, line := range lines {
		frames := New().Feed([]byte(line + "\n"))
		for _, s := range deltas(frames) {
			want.WriteString(s)
		}
	}

	for _, size := range []int{1, 2, 3, 7, 64, len(input)} {
		d := New()
		var got strings.Builder
		for start := 0; start < len(input); start += size {
			end := min(start+size, len(input))
			for _, s := range deltas(d.Feed([]byte(input[start:end]))) {
				got.WriteString(s)
			}
		}
		assert.Equal(t, want.String(), got.String(), "chunk size %d", size)
	}
	assert.Equal(t, "araw linebcdef{broken", want.String())
}

type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, r *Reader) ([]string, error) {
	t.Helper()
	var out []string
	for {
		frame, err := r.Next(context.Background())
		if err != nil {
			return out, err
		}
		if d, ok := frame.Delta(); ok {
			out = append(out, d.Text)
		}
	}
}

func TestReaderStopsAtDone(t *testing.T) {
	src := &chunkReader{chunks: []string{
		"data: {\"output_text\":\"Hel", "lo\"}\n", "data: [DONE]\n", "data: {\"output_text\":\"never\"}\n",
	}}
	got, err := collect(t, NewReader(src))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"Hello"}, got)
}

func TestReaderCleanEOFWithoutDone(t *testing.T) {
	src := &chunkReader{chunks: []string{"data: {\"output_text\":\"a\"}\n"}}
	got, err := collect(t, NewReader(src))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"a"}, got)
}

func TestReaderReportsTruncationAndReadErrors(t *testing.T) {
	got, err := collect(t, NewReader(&chunkReader{chunks: []string{"data: {\"output_text\":\"a\"}\ndata: {\"out"}}))
	assert.ErrorIs(t, err, ErrTruncatedFrame)
	assert.Equal(t, []string{"a"}, got)

	boom := errors.New("connection reset")
	got, err = collect(t, NewReader(&chunkReader{chunks: []string{"data: {\"output_text\":\"a\"}\n"}, err: boom}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, got)
}

func TestReaderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReader(strings.NewReader("data: {\"output_text\":\"a\"}\n")).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecoderStopsAtBareSentinel(t *testing.T) {
	d := New()
	frames := d.Feed([]byte("{\"output_text\":\"Hi\"}\n[DONE]\nafter\n"))

	assert.Equal(t, []string{"{\"output_text\":\"Hi\"}"}, deltas(frames))
	assert.True(t, d.Done())

	d = New()
	frames = d.Feed([]byte("data: {\"output_text\":\"Hi\"}\r\n  [DONE]  \r\ndata: {\"output_text\":\"late\"}\n"))
	assert.Equal(t, []string{"Hi"}, deltas(frames))
	assert.True(t, d.Done())
}

func TestReaderStopsAtBareSentinel(t *testing.T) {
	src := &chunkReader{chunks: []string{"data: {\"output_text\":\"a\"}\n[DO", "NE]\ndata: {\"output_text\":\"b\"}\n"}}
	got, err := collect(t, NewReader(src))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"a"}, got)
}
