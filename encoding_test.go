package filehandle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func TestLookupEncoding(t *testing.T) {
	t.Run("aliases", func(t *testing.T) {
		for _, name := range []string{"", "utf8", "UTF-8", " utf-8 "} {
			enc, err := LookupEncoding(name)
			require.NoError(t, err, name)
			assert.Equal(t, unicode.UTF8, enc, name)
		}
		for _, name := range []string{"latin1", "binary"} {
			enc, err := LookupEncoding(name)
			require.NoError(t, err, name)
			assert.Equal(t, charmap.ISO8859_1, enc, name)
		}
	})

	t.Run("utf16le round trip", func(t *testing.T) {
		enc, err := LookupEncoding("utf16le")
		require.NoError(t, err)

		encoded, err := enc.NewEncoder().String("hé")
		require.NoError(t, err)
		assert.Equal(t, "h\x00\xe9\x00", encoded)

		decoded, err := enc.NewDecoder().String(encoded)
		require.NoError(t, err)
		assert.Equal(t, "hé", decoded)
	})

	t.Run("iana names", func(t *testing.T) {
		enc, err := LookupEncoding("windows-1252")
		require.NoError(t, err)

		encoded, err := enc.NewEncoder().String("€")
		require.NoError(t, err)
		assert.Equal(t, "\x80", encoded)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := LookupEncoding("klingon")
		assert.ErrorIs(t, err, ErrNotSupported)
	})
}
