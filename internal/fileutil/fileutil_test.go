package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/kani-tts-service/internal/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheDir_WithOverride(t *testing.T) {
	t.Setenv("KANI_TTS_CACHE_DIR", "/custom/cache/dir")

	assert.Equal(t, "/custom/cache/dir", fileutil.CacheDir())
}

func TestCacheDir_Default(t *testing.T) {
	t.Setenv("KANI_TTS_CACHE_DIR", "")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skip("could not determine user home directory")
	}

	assert.Equal(t, filepath.Join(homeDir, ".cache", "kani-tts"), fileutil.CacheDir())
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, fileutil.EnsureDir(path))
	require.NoError(t, fileutil.EnsureDir(path))
	assert.DirExists(t, path)
}

func TestModelPath_Direct(t *testing.T) {
	t.Parallel()

	modelPath := filepath.Join(t.TempDir(), "kani-tts-vie.gguf")
	require.NoError(t, os.WriteFile(modelPath, []byte("model"), 0o600))

	resolved, err := fileutil.ModelPath(modelPath)
	require.NoError(t, err)
	assert.Equal(t, modelPath, resolved)
}

func TestModelPath_InCacheDir(t *testing.T) {
	cacheDir := t.TempDir()
	t.Setenv("KANI_TTS_CACHE_DIR", cacheDir)

	modelsDir := filepath.Join(cacheDir, "models")
	require.NoError(t, os.MkdirAll(modelsDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "snac.gguf"), []byte("codec"), 0o600))

	resolved, err := fileutil.ModelPath("snac.gguf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(modelsDir, "snac.gguf"), resolved)
}

func TestModelPath_NotFound(t *testing.T) {
	t.Setenv("KANI_TTS_CACHE_DIR", t.TempDir())

	_, err := fileutil.ModelPath("does-not-exist.gguf")
	require.ErrorIs(t, err, fileutil.ErrModelNotFound)
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "0.0s"},
		{45.2, "45.2s"},
		{330.5, "5m 30.5s"},
		{4500, "1h 15m"},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.expected, fileutil.FormatDuration(testCase.seconds))
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "12 B", fileutil.FormatFileSize(12))
	assert.Equal(t, "3.0 KB", fileutil.FormatFileSize(3*1024))
	assert.Equal(t, "1.5 MB", fileutil.FormatFileSize(1536*1024))
	assert.Equal(t, "2.0 GB", fileutil.FormatFileSize(2*1024*1024*1024))
}

func TestIsTextFile(t *testing.T) {
	t.Parallel()

	assert.True(t, fileutil.IsTextFile("input.txt"))
	assert.True(t, fileutil.IsTextFile("NOTES.MD"))
	assert.True(t, fileutil.IsTextFile("utterances"))
	assert.False(t, fileutil.IsTextFile("voice.wav"))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c_d", fileutil.SanitizeFilename("a/b:c d"))
	assert.Equal(t, "Xin_chào_bạn", fileutil.SanitizeFilename("Xin  chào\tbạn"))
}

func TestOutputName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0003_xin-chao.wav", fileutil.OutputName(3, "Xin chào."))
	assert.Equal(t, "0001_utterance.wav", fileutil.OutputName(1, "?!"))
	assert.Equal(t, "0002_duong-pho.wav", fileutil.OutputName(2, "Đường phố"))

	long := fileutil.OutputName(12, "Khi bạn kề vai sát cánh cùng đồng đội của mình, bạn có thể làm nên")
	assert.Equal(t, "0012_khi-ban-ke-vai-sat-canh-cung-dong-doi-cu.wav", long)
}
