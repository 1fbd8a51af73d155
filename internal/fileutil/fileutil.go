// Package fileutil resolves model files, names output files and formats sizes
// and durations for display.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gosimple/slug"
)

// Environment variable names used for path resolution.
const (
	envCacheDir = "KANI_TTS_CACHE_DIR"
)

// Application directory and path constants.
const (
	appName               = "kani-tts"
	modelsDirName         = "models"
	dotCache              = ".cache"
	defaultDirPermissions = 0o750
	invalidReplacement    = "_"
	outputNameFormat      = "%04d_%s.wav"
	outputNameFallback    = "utterance"
	maxOutputStemLen      = 40
	slugSeparator         = "-"
)

// Data size constants.
const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// Text input extensions accepted by the batch runner.
var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
	"":     true,
}

const (
	errFmtFailedToCreateDir      = "failed to create directory %s: %w"
	errFmtCouldNotResolvePath    = "could not resolve absolute path for %q: %w"
	errFmtErrorCheckingModelPath = "error checking model path %q: %w"
	errFmtModelNotFound          = "%w: %s"
)

// ErrModelNotFound is returned when a model file cannot be located.
var ErrModelNotFound = errors.New("model not found")

// CacheDir returns the directory where downloaded models are kept. The
// KANI_TTS_CACHE_DIR variable overrides the default ~/.cache/kani-tts.
func CacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// EnsureDir creates path and its parents when missing.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, err)
	}

	return nil
}

// ModelPath resolves a model file by checking, in order, the name itself, a
// local models directory and the cache models directory.
func ModelPath(modelName string) (string, error) {
	candidates := []string{
		modelName,
		filepath.Join(modelsDirName, modelName),
		filepath.Join(CacheDir(), modelsDirName, modelName),
	}

	for _, candidate := range candidates {
		resolved, found, err := resolvePath(candidate)
		if err != nil {
			return "", err
		}

		if found {
			return resolved, nil
		}
	}

	return "", fmt.Errorf(errFmtModelNotFound, ErrModelNotFound, modelName)
}

func resolvePath(path string) (string, bool, error) {
	_, statErr := os.Stat(path)

	switch {
	case statErr == nil:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", false, fmt.Errorf(errFmtCouldNotResolvePath, path, err)
		}

		return absPath, true, nil
	case errors.Is(statErr, os.ErrNotExist):
		return "", false, nil
	default:
		return "", false, fmt.Errorf(errFmtErrorCheckingModelPath, path, statErr)
	}
}

// FormatDuration formats seconds as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remaining := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remaining)
	}

	hours := int(seconds / secondsInHour)
	minutes := int((seconds - float64(hours*secondsInHour)) / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, minutes)
}

// FormatFileSize formats a byte count as "1.2 GB", "500.5 MB", "3.0 KB" or "12 B".
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsTextFile reports whether filename looks like plain text input.
func IsTextFile(filename string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(filename))]
}

// SanitizeFilename replaces characters that are invalid in common filesystems
// and collapses whitespace to underscores.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidReplacement,
		">", invalidReplacement,
		":", invalidReplacement,
		"\"", invalidReplacement,
		"/", invalidReplacement,
		"\\", invalidReplacement,
		"|", invalidReplacement,
		"?", invalidReplacement,
		"*", invalidReplacement,
	)

	return strings.Join(strings.FieldsFunc(replacer.Replace(filename), unicode.IsSpace), invalidReplacement)
}

// OutputName builds the file name for the index-th (1-based) utterance of a
// batch from an ASCII slug of its text, e.g. "0003_xin-chao.wav".
func OutputName(index int, utterance string) string {
	stem := slug.Make(utterance)

	if len(stem) > maxOutputStemLen {
		stem = strings.TrimRight(stem[:maxOutputStemLen], slugSeparator)
	}

	if stem == "" {
		stem = outputNameFallback
	}

	return fmt.Sprintf(outputNameFormat, index, stem)
}
