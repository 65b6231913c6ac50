package filehandle

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultEncoding is the text encoding used by Text and WriteString unless
// a handle is configured otherwise.
const DefaultEncoding = "utf-8"

// LookupEncoding resolves a text encoding by name. Besides IANA names it
// accepts the short aliases utf8, latin1, binary, ucs2 and utf16le.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", "utf-8":
		return unicode.UTF8, nil
	case "latin1", "binary":
		return charmap.ISO8859_1, nil
	case "ucs2", "ucs-2", "utf16le", "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: unsupported text encoding: %s", ErrNotSupported, name)
	}
	return enc, nil
}
