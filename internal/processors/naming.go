package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/policy"
)

const (
	fallbackStem   = "file"
	encryptedChars = 32
)

var whitespace = regexp.MustCompile(`\s+`)

// CandidateName returns the name tried on the given collision attempt: the bare
// name first, then stem1.ext, stem2.ext and so on. ext carries its leading dot.
func CandidateName(stem, ext string, attempt int) string {
	if attempt <= 0 {
		return stem + ext
	}
	return stem + strconv.Itoa(attempt) + ext
}

// baseName drops any directory part, treating both slash styles as separators.
func baseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	b := path.Base(name)
	if b == "." || b == "/" || b == ".." {
		return ""
	}
	return b
}

// splitName splits a base name into stem and dotted extension. Dot files such as
// ".env" are treated as a stem without extension.
func splitName(name string) (string, string) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		return strings.TrimPrefix(ext, "."), ""
	}
	if ext == "." {
		return stem, ""
	}
	return stem, ext
}

// nameInput carries what the naming rules need besides the policy.
type nameInput struct {
	declared   string
	sniffedExt string
	hash       func() (string, error)
}

// buildName applies the naming policy and returns the stem and dotted extension.
func buildName(cfg policy.Config, in nameInput) (string, string, error) {
	declared := baseName(in.declared)
	if cfg.FileName != "" {
		forced := baseName(cfg.FileName)
		if _, ext := splitName(forced); ext == "" {
			_, declaredExt := splitName(declared)
			forced += declaredExt
		}
		declared = forced
	}

	stem, ext := splitName(declared)
	if ext == "" && cfg.ExtensionFromMime && in.sniffedExt != "" {
		ext = in.sniffedExt
	}
	if cfg.LowercaseExtension {
		ext = strings.ToLower(ext)
	}
	if cfg.RemoveSpaces {
		stem = whitespace.ReplaceAllString(stem, "_")
		ext = whitespace.ReplaceAllString(ext, "_")
	}
	if cfg.ModMimeFix {
		stem = fixInnerExtensions(stem)
	}
	if cfg.EncryptName {
		sum, err := in.hash()
		if err != nil {
			return "", "", err
		}
		stem = sum
	}
	if cfg.MaxFilenameLength > 0 {
		if r := []rune(stem); len(r) > cfg.MaxFilenameLength {
			stem = string(r[:cfg.MaxFilenameLength])
		}
	}
	if stem == "" {
		stem = fallbackStem
	}
	return stem, ext, nil
}

// fixInnerExtensions suffixes every inner dot segment with "_" so a name like
// "shell.php.jpg" cannot be served as PHP.
func fixInnerExtensions(stem string) string {
	parts := strings.Split(stem, ".")
	if len(parts) < 2 {
		return stem
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(".")
		b.WriteString(p)
		b.WriteString("_")
	}
	return b.String()
}

// contentHash returns the first 32 hex characters of the file's SHA-256.
func contentHash(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:encryptedChars], nil
}

// pickName walks the collision sequence in dir and returns the first name that
// does not exist yet together with its attempt index.
func pickName(dir, stem, ext string, overwrite bool, limit int) (string, int, error) {
	if overwrite {
		return stem + ext, 0, nil
	}
	attempts := max(limit, 1)
	for i := 0; i < attempts; i++ {
		name := CandidateName(stem, ext, i)
		_, err := os.Lstat(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, i, nil
		}
		if err != nil {
			return "", 0, appErrors.Wrap(err, appErrors.ErrFileCopying, "")
		}
	}
	return "", 0, appErrors.Clonef(appErrors.ErrFilenameCollision,
		"no free name for %s%s after %d attempts", stem, ext, attempts)
}
