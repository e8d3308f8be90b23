package rpcproto

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, MethodRun, &RunRequest{Path: "/bin/hello.wasm", Args: []string{"a", "b"}}))

	env, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	require.Equal(t, MethodRun, env.Method)

	req, ok := env.Payload.(*RunRequest)
	require.True(t, ok)
	require.Equal(t, "/bin/hello.wasm", req.Path)
	require.Equal(t, []string{"a", "b"}, req.Args)
}

func TestWriteReadResultRoundTripFault(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, nil, &Fault{Message: "program nope not found"}))

	res, err := ReadResult(&buf)
	require.NoError(t, err)
	require.Nil(t, res.Payload)
	require.Equal(t, "program nope not found", res.Fault.Message)
}

func TestWriteReadResultRoundTripPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, &ListResponse{Programs: []Program{
		{ID: "hello-abc1234", Path: "/bin/hello.wasm", ProgramType: 0, Status: 0, Addr: ""},
	}}, nil))

	res, err := ReadResult(&buf)
	require.NoError(t, err)
	require.Nil(t, res.Fault)

	lst, ok := res.Payload.(*ListResponse)
	require.True(t, ok)
	require.Len(t, lst.Programs, 1)
	require.Equal(t, "hello-abc1234", lst.Programs[0].ID)
}

func TestReadFrameAcceptsGzip(t *testing.T) {
	var raw bytes.Buffer
	require.NoError(t, gob.NewEncoder(&raw).Encode(&ResultEnvelope{Payload: &StopResponse{}}))

	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, err := gw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var frame bytes.Buffer
	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[:4], uint32(compressed.Len()+1))
	header[4] = flagGzip
	frame.Write(header)
	frame.Write(compressed.Bytes())

	res, err := ReadResult(&frame)
	require.NoError(t, err)
	require.Nil(t, res.Fault)
	_, ok := res.Payload.(*StopResponse)
	require.True(t, ok)
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	var frame bytes.Buffer
	header := make([]byte, 5)
	frame.Write(header)
	var env Envelope
	require.Error(t, ReadFrame(&frame, &env))
}
