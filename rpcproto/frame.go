package rpcproto

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	flagZstd byte = 1 << 0
	flagGzip byte = 1 << 1
)

// Envelope carries one RPC request (or the sole frame of a logs stream
// request) tagged with the method it targets.
type Envelope struct {
	Method  Method
	Payload any
}

// ResultEnvelope carries one RPC response frame. Fault is set instead of
// Payload when the call failed; spec.md §7 requires the original error
// message survive the wire unchanged.
type ResultEnvelope struct {
	Payload any
	Fault   *Fault
}

var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder

	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func encoder() *zstd.Encoder {
	zstdEncOnce.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(fmt.Sprintf("rpcproto: init zstd encoder: %v", err))
		}
		zstdEnc = enc
	})
	return zstdEnc
}

func decoder() *zstd.Decoder {
	zstdDecOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("rpcproto: init zstd decoder: %v", err))
		}
		zstdDec = dec
	})
	return zstdDec
}

// WriteFrame gob-encodes v, Zstd-compresses the result, and writes the
// frame (4-byte big-endian length covering flags+payload, 1-byte flags,
// payload) to w. Every outbound frame is Zstd-compressed, per spec.md §6.
func WriteFrame(w io.Writer, v any) error {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(v); err != nil {
		return fmt.Errorf("encode frame payload: %w", err)
	}

	payload := encoder().EncodeAll(raw.Bytes(), nil)

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)+1))
	header[4] = flagZstd

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and gob-decodes it into v, a pointer
// to the type that was written. Accepts either Zstd- or Gzip-compressed
// payloads, matching spec.md §6's asymmetric compression contract.
func ReadFrame(r io.Reader, v any) error {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(header[:4])
	if length == 0 {
		return fmt.Errorf("invalid frame: zero length")
	}
	flags := header[4]

	payload := make([]byte, length-1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}

	raw, err := decompress(payload, flags)
	if err != nil {
		return fmt.Errorf("decompress frame: %w", err)
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return fmt.Errorf("decode frame payload: %w", err)
	}
	return nil
}

func decompress(payload []byte, flags byte) ([]byte, error) {
	switch {
	case flags&flagGzip != 0:
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case flags&flagZstd != 0:
		return decoder().DecodeAll(payload, nil)
	default:
		return payload, nil
	}
}

// WriteEnvelope writes one request frame for method carrying payload.
func WriteEnvelope(w io.Writer, method Method, payload any) error {
	return WriteFrame(w, &Envelope{Method: method, Payload: payload})
}

// ReadEnvelope reads one request frame.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := ReadFrame(r, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// WriteResult writes one response frame: either a payload or a fault,
// never both.
func WriteResult(w io.Writer, payload any, fault *Fault) error {
	return WriteFrame(w, &ResultEnvelope{Payload: payload, Fault: fault})
}

// ReadResult reads one response frame.
func ReadResult(r io.Reader) (*ResultEnvelope, error) {
	var res ResultEnvelope
	if err := ReadFrame(r, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
