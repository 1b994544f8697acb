package stream

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DoneSentinel is the payload that ends a reply stream.
const DoneSentinel = "[DONE]"

// DefaultMaxBufferSize bounds the text held while waiting for a frame
// separator.
const DefaultMaxBufferSize = 1 << 20

// ErrFrameTooLarge is returned when an incomplete frame outgrows the
// buffer limit.
var ErrFrameTooLarge = errors.New("stream: event frame exceeds buffer limit")

var (
	frameSep = regexp.MustCompile(`\r?\n\r?\n`)
	lineSep  = regexp.MustCompile(`\r?\n`)
)

// Decoder turns raw event-stream bytes into data payloads. Chunks may
// split frames and multi-byte characters anywhere. A Decoder is not safe
// for concurrent use.
type Decoder struct {
	utf8    transform.Transformer
	pending []byte
	buf     string
	max     int
	done    bool
}

// NewDecoder returns a Decoder that buffers at most maxBuffer bytes of
// incomplete frame text. maxBuffer <= 0 uses DefaultMaxBufferSize.
func NewDecoder(maxBuffer int) *Decoder {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBufferSize
	}
	return &Decoder{
		utf8: unicode.UTF8.NewDecoder(),
		max:  maxBuffer,
	}
}

// Done reports whether the sentinel has been seen.
func (d *Decoder) Done() bool { return d.done }

// Feed decodes chunk and returns the payloads of every frame it
// completed. done is true once the sentinel arrives; anything after it
// is discarded and later calls return nothing.
func (d *Decoder) Feed(chunk []byte) (deltas []string, done bool, err error) {
	if d.done {
		return nil, true, nil
	}
	d.buf += d.decode(chunk, false)

	frames := frameSep.Split(d.buf, -1)
	d.buf = frames[len(frames)-1]
	deltas, done = d.process(frames[:len(frames)-1])
	if done {
		return deltas, true, nil
	}
	if len(d.buf)+len(d.pending) > d.max {
		return deltas, false, ErrFrameTooLarge
	}
	return deltas, false, nil
}

// Flush ends the input: pending bytes are decoded and whatever remains
// in the buffer is treated as a final frame.
func (d *Decoder) Flush() (deltas []string, done bool, err error) {
	if d.done {
		return nil, true, nil
	}
	d.buf += d.decode(nil, true)
	frames := frameSep.Split(d.buf, -1)
	d.buf = ""
	deltas, done = d.process(frames)
	return deltas, done, nil
}

func (d *Decoder) process(frames []string) ([]string, bool) {
	var deltas []string
	for _, frame := range frames {
		payload, ok := parseFrame(frame)
		if !ok {
			continue
		}
		if payload == DoneSentinel {
			d.done = true
			d.buf = ""
			d.pending = nil
			return deltas, true
		}
		if payload != "" {
			deltas = append(deltas, payload)
		}
	}
	return deltas, false
}

// parseFrame joins the data lines of one frame. ok is false when the
// frame has no data line (heartbeats, comments, other fields only).
func parseFrame(frame string) (payload string, ok bool) {
	var data []string
	for _, line := range lineSep.Split(frame, -1) {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
			continue
		}
		value, found := strings.CutPrefix(line, "data:")
		if !found {
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}
	if len(data) == 0 {
		return "", false
	}
	return strings.Join(data, "\n"), true
}

// decode runs chunk through the UTF-8 decoder. Invalid bytes become
// U+FFFD; an incomplete trailing sequence is held until the next call
// unless atEOF is set.
func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	if len(src) == 0 {
		return ""
	}

	var out strings.Builder
	dst := make([]byte, 3*len(src)+4)
	for {
		nDst, nSrc, err := d.utf8.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]
		switch {
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
		}
		return out.String()
	}
}
