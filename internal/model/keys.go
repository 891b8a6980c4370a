package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxFilenameLength = 180

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// OutputKey derives a fresh storage key for a rendered artifact:
// outputs/{user}/{yyyy/mm/dd}/{job}-{token}.{ext}
func OutputKey(userID, jobID, ext string, now time.Time) string {
	day := now.UTC().Format("2006/01/02")
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("outputs/%s/%s/%s-%s.%s", userID, day, jobID, shortToken(), ext)
}

// UploadKey derives the storage key for a user upload:
// uploads/{user}/{yyyy/mm/dd}/{token}-{sanitized filename}
func UploadKey(userID, filename string, now time.Time) string {
	day := now.UTC().Format("2006/01/02")
	return fmt.Sprintf("uploads/%s/%s/%s-%s", userID, day, shortToken(), SanitizeFilename(filename))
}

// SanitizeFilename replaces anything outside [A-Za-z0-9._-] with '_' and
// bounds the length.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	if len(name) > maxFilenameLength {
		name = name[len(name)-maxFilenameLength:]
	}
	return name
}

func shortToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
