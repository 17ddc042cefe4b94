package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamRoundTrip(t *testing.T) {
	original := []byte("id,name\n1,alpha\n2,beta\n3,gamma\n3,gamma\n3,gamma\n")

	for _, a := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(a), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, a, Default)
			require.NoError(t, err)
			_, err = w.Write(original)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := NewReader(&buf, a)
			require.NoError(t, err)
			defer r.Close()

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, original, got)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{in: "", want: None},
		{in: "GZIP", want: Gzip},
		{in: " zstd ", want: Zstd},
		{in: "brotli", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromExtension(t *testing.T) {
	assert.Equal(t, Gzip, FromExtension("hdm_abc.csv.gz"))
	assert.Equal(t, Zstd, FromExtension("hdm_abc.csv.zst"))
	assert.Equal(t, None, FromExtension("hdm_abc.csv"))
	assert.Equal(t, None, FromExtension("README"))
	assert.Equal(t, ".lz4", LZ4.Extension())
}
