// Package demo reads and writes decoded demo streams: one JSON header line
// followed by one JSON line per (message, tick), optionally zstd-compressed.
package demo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"demoreel/internal/protocol"
)

var (
	ErrDecode    = errors.New("decode")
	ErrTickOrder = errors.New("tick went backwards")
	ErrNoHeader  = errors.New("stream has no header")
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

const maxLine = 8 * 1024 * 1024

// LineDecoder decodes stream lines one at a time. It enforces header-first
// and non-decreasing ticks. Used directly by frame-oriented transports.
type LineDecoder struct {
	validator *protocol.Validator

	line     int
	header   bool
	lastTick uint32
}

func NewLineDecoder(v *protocol.Validator) *LineDecoder {
	return &LineDecoder{validator: v}
}

func (d *LineDecoder) Header(b []byte) (protocol.Header, error) {
	d.line++
	if d.validator != nil {
		if err := d.validator.Validate(b); err != nil {
			return protocol.Header{}, d.fail(err)
		}
	}
	h, err := protocol.DecodeHeader(b)
	if err != nil {
		return h, d.fail(err)
	}
	d.header = true
	return h, nil
}

func (d *LineDecoder) Message(b []byte) (protocol.Message, error) {
	d.line++
	if !d.header {
		return protocol.Message{}, d.fail(ErrNoHeader)
	}
	if d.validator != nil {
		if err := d.validator.Validate(b); err != nil {
			return protocol.Message{}, d.fail(err)
		}
	}
	m, err := protocol.Decode(b)
	if err != nil {
		return m, d.fail(err)
	}
	if m.Tick < d.lastTick {
		return protocol.Message{}, d.fail(fmt.Errorf("%w: %d after %d", ErrTickOrder, m.Tick, d.lastTick))
	}
	d.lastTick = m.Tick
	return m, nil
}

func (d *LineDecoder) fail(err error) error {
	return fmt.Errorf("%w: line %d: %w", ErrDecode, d.line, err)
}

// Reader pulls messages from a stream. It is not safe for concurrent use.
type Reader struct {
	header protocol.Header
	sc     *bufio.Scanner
	dec    *LineDecoder
	zr     *zstd.Decoder
}

type Option func(*options)

type options struct {
	validator *protocol.Validator
}

// WithValidator validates every line against the message schemas.
func WithValidator(v *protocol.Validator) Option {
	return func(o *options) { o.validator = v }
}

// Open reads the header line and prepares r for Next.
func Open(r io.Reader, opts ...Option) (*Reader, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	br := bufio.NewReaderSize(r, 64*1024)
	rd := &Reader{dec: NewLineDecoder(o.validator)}
	var src io.Reader = br
	if magic, _ := br.Peek(len(zstdMagic)); bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		rd.zr = zr
		src = zr
	}
	rd.sc = bufio.NewScanner(src)
	rd.sc.Buffer(make([]byte, 64*1024), maxLine)

	line, err := rd.nextLine()
	if err == io.EOF {
		rd.Close()
		return nil, fmt.Errorf("%w: %w", ErrDecode, ErrNoHeader)
	}
	if err != nil {
		rd.Close()
		return nil, err
	}
	h, err := rd.dec.Header(line)
	if err != nil {
		rd.Close()
		return nil, err
	}
	rd.header = h
	return rd, nil
}

func (r *Reader) Header() protocol.Header { return r.header }

// Next returns the next message, or io.EOF at the end of the stream.
func (r *Reader) Next() (protocol.Message, error) {
	line, err := r.nextLine()
	if err != nil {
		return protocol.Message{}, err
	}
	return r.dec.Message(line)
}

func (r *Reader) nextLine() ([]byte, error) {
	for r.sc.Scan() {
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil, io.EOF
}

// Close releases the decompressor. It does not close the underlying reader.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
		r.zr = nil
	}
	return nil
}
