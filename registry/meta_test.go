package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []ProgramMeta{
		{Path: "./hello.wasm", ProgramType: ProgramCLI, Args: nil},
		{Path: "./cli.wasm", ProgramType: ProgramCLI, Args: []string{"-a=b", "-c=d"}},
		{Path: "http://example.com/http.wasm", ProgramType: ProgramHTTP, Addr: "localhost:8080"},
		{Path: "empty-args", ProgramType: ProgramCLI, Args: []string{}},
	}
	for _, meta := range cases {
		data := Encode(meta)
		got, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, meta.Path, got.Path)
		require.Equal(t, meta.ProgramType, got.ProgramType)
		require.Equal(t, meta.Addr, got.Addr)
		require.Equal(t, len(meta.Args), len(got.Args))
		for i := range meta.Args {
			require.Equal(t, meta.Args[i], got.Args[i])
		}
	}
}

func TestDecodeTruncatedFails(t *testing.T) {
	data := Encode(ProgramMeta{Path: "x", ProgramType: ProgramCLI})
	_, err := Decode(data[:len(data)-1])
	require.Error(t, err)
}
