package keywords

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"single", []string{"양말"}, []string{"양말"}},
		{"comma separated", []string{"양말, 장갑 ,모자"}, []string{"양말", "장갑", "모자"}},
		{"several args", []string{"양말", "장갑,양말"}, []string{"양말", "장갑"}},
		{"empties dropped", []string{" , ,", ""}, []string{}},
		{"inner spaces kept", []string{"수면 양말"}, []string{"수면 양말"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromArgs(tt.args...))
		})
	}
}

func TestRead(t *testing.T) {
	input := "# winter items\n양말\n\n  장갑  \n#모자\n양말\n"

	got, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"양말", "장갑"}, got)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.txt")
	require.NoError(t, os.WriteFile(path, []byte("양말\r\n장갑\r\n"), 0o644))

	got, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"양말", "장갑"}, got)

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Normalize([]string{" a", "b ", "a", "  "}))
	assert.Empty(t, Normalize(nil))
}
