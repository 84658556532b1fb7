package demo

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zstd"

	"demoreel/internal/protocol"
)

// Writer records a stream in the format Open reads.
type Writer struct {
	bw  *bufio.Writer
	enc *zstd.Encoder
}

func NewWriter(w io.Writer, compress bool) (*Writer, error) {
	out := &Writer{}
	if compress {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, err
		}
		out.enc = enc
		out.bw = bufio.NewWriterSize(enc, 128*1024)
	} else {
		out.bw = bufio.NewWriterSize(w, 128*1024)
	}
	return out, nil
}

func (w *Writer) WriteHeader(h protocol.Header) error {
	h.Type = protocol.TypeHeader
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return w.writeLine(b)
}

func (w *Writer) WriteMessage(m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return w.writeLine(b)
}

func (w *Writer) writeLine(b []byte) error {
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// Close flushes buffered lines. It does not close the underlying writer.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if w.enc != nil {
		return w.enc.Close()
	}
	return nil
}
