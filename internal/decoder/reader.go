package decoder

import (
	"context"
	"errors"
	"io"
)

const readBufferSize = 32 * 1024

// Reader pulls frames from an io.Reader one at a time, reading only as much
// input as needed to produce the next frame.
type Reader struct {
	src     io.Reader
	dec     *Decoder
	buf     []byte
	pending []Frame
	err     error
}

// NewReader decodes frames from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src: src,
		dec: New(),
		buf: make([]byte, readBufferSize),
	}
}

// Next returns the next frame. It returns io.EOF once the input ends cleanly
// or the [DONE] sentinel is reached, ErrTruncatedFrame if the input ended
// mid-frame, ctx.Err() if ctx is done, and any other read error as is.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if len(r.pending) > 0 {
			frame := r.pending[0]
			r.pending = r.pending[1:]
			return frame, nil
		}
		if r.err != nil {
			return Frame{}, r.err
		}
		if r.dec.Done() {
			r.err = io.EOF
			continue
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			frames, finishErr := r.dec.Finish()
			r.pending = append(r.pending, frames...)
			r.err = io.EOF
			if finishErr != nil {
				r.err = finishErr
			}
		default:
			r.err = err
		}
	}
}
