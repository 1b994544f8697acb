package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, d *Decoder, chunks ...string) ([]string, bool) {
	t.Helper()
	var all []string
	for _, c := range chunks {
		deltas, done, err := d.Feed([]byte(c))
		require.NoError(t, err)
		all = append(all, deltas...)
		if done {
			return all, true
		}
	}
	return all, false
}

func TestDecoderSplitsFrames(t *testing.T) {
	d := NewDecoder(0)
	deltas, done := feedAll(t, d, "data: Hel", "lo\n\ndata: wor", "ld\n\n")
	assert.Equal(t, []string{"Hello", "world"}, deltas)
	assert.False(t, done)
}

func TestDecoderCRLF(t *testing.T) {
	d := NewDecoder(0)
	deltas, _ := feedAll(t, d, "data: a\r\n\r", "\ndata: b\r\n\r\n")
	assert.Equal(t, []string{"a", "b"}, deltas)
}

func TestDecoderMultiLineData(t *testing.T) {
	d := NewDecoder(0)
	deltas, _ := feedAll(t, d, "data: line one\ndata:line two\ndata:  indented\n\n")
	assert.Equal(t, []string{"line one\nline two\n indented"}, deltas)
}

func TestDecoderSkipsHeartbeatsAndOtherFields(t *testing.T) {
	d := NewDecoder(0)
	deltas, _ := feedAll(t, d,
		": ping\n\n",
		"event: token\nid: 4\ndata: x\n\n",
		"retry: 1000\n\n",
		"data:\n\n",
		"data: \n\n",
	)
	assert.Equal(t, []string{"x"}, deltas)
}

func TestDecoderSentinelStopsImmediately(t *testing.T) {
	d := NewDecoder(0)
	deltas, done, err := d.Feed([]byte("data: a\n\ndata: [DONE]\n\ndata: late\n\n"))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []string{"a"}, deltas)
	assert.True(t, d.Done())

	deltas, done, err = d.Feed([]byte("data: after\n\n"))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, deltas)
}

func TestDecoderMultiByteAcrossChunks(t *testing.T) {
	raw := []byte("data: 借閱成功 ✓\n\n")
	d := NewDecoder(0)
	var got []string
	for i := range raw {
		deltas, _, err := d.Feed(raw[i : i+1])
		require.NoError(t, err)
		got = append(got, deltas...)
	}
	assert.Equal(t, []string{"借閱成功 ✓"}, got)
}

func TestDecoderInvalidBytes(t *testing.T) {
	d := NewDecoder(0)
	deltas, _, err := d.Feed([]byte("data: a\xffb\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a�b"}, deltas)
}

func TestDecoderFlushTrailingFrame(t *testing.T) {
	d := NewDecoder(0)
	deltas, _ := feedAll(t, d, "data: one\n\ndata: tw")
	assert.Equal(t, []string{"one"}, deltas)

	deltas, done, err := d.Flush()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, []string{"tw"}, deltas)
}

func TestDecoderFlushIncompleteRune(t *testing.T) {
	d := NewDecoder(0)
	_, _, err := d.Feed([]byte("data: \xe5\x80"))
	require.NoError(t, err)

	deltas, _, err := d.Flush()
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.True(t, strings.HasPrefix(deltas[0], "�"))
}

func TestDecoderFlushSentinel(t *testing.T) {
	d := NewDecoder(0)
	_, _ = feedAll(t, d, "data: [DONE]")
	_, done, err := d.Flush()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestDecoderBufferLimit(t *testing.T) {
	d := NewDecoder(16)
	_, _, err := d.Feed([]byte("data: 0123456789abcdef"))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	d = NewDecoder(16)
	deltas, done := feedAll(t, d, "data: 0123456\n\n", "data: 789abcd\n\n")
	assert.False(t, done)
	assert.Equal(t, []string{"0123456", "789abcd"}, deltas)
}
