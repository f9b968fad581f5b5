package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJCS(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		expect string
	}{
		{
			name:   "unordered keys",
			input:  map[string]any{"b": 2, "a": 1},
			expect: `{"a":1,"b":2}`,
		},
		{
			name:   "nested",
			input:  map[string]any{"x": map[string]any{"z": 10, "y": 5}},
			expect: `{"x":{"y":5,"z":10}}`,
		},
		{
			name:   "no html escaping",
			input:  map[string]any{"expr": "a < b && c > d"},
			expect: `{"expr":"a < b && c > d"}`,
		},
		{
			name: "struct tags respected",
			input: struct {
				Zed   string `json:"zed"`
				Alpha int    `json:"alpha"`
			}{Zed: "z", Alpha: 1},
			expect: `{"alpha":1,"zed":"z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JCS(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expect, string(got))
		})
	}
}

func TestDigest(t *testing.T) {
	d, err := Digest(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(`{"a":1,"b":2}`))
	require.Equal(t, "sha256:"+hex.EncodeToString(sum[:]), d)
}

func TestJCSRejectsUnencodable(t *testing.T) {
	_, err := JCS(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}

func TestJCSKeepsLargeIntegersExact(t *testing.T) {
	a, err := JCS(map[string]any{"max": int64(9007199254740993)})
	require.NoError(t, err)
	require.Equal(t, `{"max":9007199254740993}`, string(a))

	da, err := Digest(map[string]any{"max": int64(9007199254740993)})
	require.NoError(t, err)
	db, err := Digest(map[string]any{"max": int64(9007199254740992)})
	require.NoError(t, err)
	require.NotEqual(t, da, db)
}

func TestJCSNumberFormatting(t *testing.T) {
	got, err := JCS([]any{1.0, 0.5, -0.0, 1e21, 100, json.Number("-0")})
	require.NoError(t, err)
	require.Equal(t, `[1,0.5,0,1e+21,100,0]`, string(got))
}

func TestJCSOrdersKeysByUTF16(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) and sorts before U+FB01.
	got, err := JCS(map[string]any{"ﬁ": 1, "\U0001F600": 2})
	require.NoError(t, err)
	require.Equal(t, "{\"\U0001F600\":2,\"ﬁ\":1}", string(got))
}
