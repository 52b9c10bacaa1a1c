// Package common holds small helpers shared by the packages of this module.
package common

import (
	"bytes"
	"encoding/base64"
	"io"
	"os"
	"strings"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// Close closes c, logging a failure at warning level.
func Close(c io.Closer) {
	if err := c.Close(); err != nil && Logger != nil {
		Logger.WithError(err).Warn("Failed to close")
	}
}

// ReadKey returns key, or the contents of the regular file at path with surrounding whitespace
// removed. Exactly one of key and path must be given. The returned key is never empty.
func ReadKey(key, path string) ([]byte, error) {
	switch {
	case key != "" && path != "":
		return nil, errors.New("key and key file are mutually exclusive")
	case key != "":
		return []byte(key), nil
	case path == "":
		return nil, errors.New("no key or key file given")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed to read key file", 0)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Errorf("key file %s is not a regular file", path)
	}
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed to read key file", 0)
	}
	if bts = bytes.TrimSpace(bts); len(bts) == 0 {
		return nil, errors.Errorf("key file %s is empty", path)
	}
	return bts, nil
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Base64Decode decodes b in the standard or the URL-safe alphabet, padded or not.
func Base64Decode(b []byte) ([]byte, error) {
	str := strings.TrimSpace(string(b))
	var err error
	for _, encoding := range base64Encodings {
		var bts []byte
		if bts, err = encoding.DecodeString(str); err == nil {
			return bts, nil
		}
	}
	return nil, errors.WrapPrefix(err, "invalid base64", 0)
}
