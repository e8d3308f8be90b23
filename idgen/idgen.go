// Package idgen generates the human-readable program ids the supervisor
// assigns on registration: <file-stem>-<7 alphanumeric>.
package idgen

import (
	"crypto/rand"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/wacker-dev/wackerd/errors"
)

const suffixLength = 7

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// New builds a program id from a filesystem path or URL: the file stem
// (extension stripped) of the last path segment, followed by a dash and a
// random alphanumeric suffix. Returns an error if path has no file stem.
func New(path string) (string, error) {
	stem := fileStem(path)
	if stem == "" {
		return "", errors.InvalidInput(errors.PhaseSupervise, "failed to get file name in path "+path)
	}

	suffix, err := randomSuffix(suffixLength)
	if err != nil {
		return "", err
	}
	return stem + "-" + suffix, nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

func randomSuffix(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphanumeric[n.Int64()]
	}
	return string(out), nil
}
