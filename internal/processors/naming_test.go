package processors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/policy"
)

func noHash() (string, error) { return "", nil }

func TestBuildName(t *testing.T) {
	tests := []struct {
		name     string
		spec     policy.Spec
		declared string
		sniffed  string
		want     string
	}{
		{name: "strips unix path", declared: "../../etc/passwd.txt", want: "passwd.txt"},
		{name: "strips windows path", declared: `C:\Users\me\report.pdf`, want: "report.pdf"},
		{name: "replaces whitespace", declared: "my  holiday\tphoto.JPG", want: "my_holiday_photo.JPG"},
		{name: "lowercases extension", spec: policy.Spec{LowercaseExtension: true}, declared: "Photo.JPG", want: "Photo.jpg"},
		{name: "neutralises inner extensions", declared: "shell.php.jpg", want: "shell.php_.jpg"},
		{name: "extension from content", declared: "blob", sniffed: ".png", want: "blob.png"},
		{name: "keeps declared extension over content", declared: "blob.dat", sniffed: ".png", want: "blob.dat"},
		{name: "forced name gets upload extension", spec: policy.Spec{FileName: "avatar"}, declared: "me.png", want: "avatar.png"},
		{name: "forced name keeps own extension", spec: policy.Spec{FileName: "avatar.gif"}, declared: "me.png", want: "avatar.gif"},
		{name: "truncates stem only", spec: policy.Spec{MaxFilenameLength: 4}, declared: "abcdefgh.txt", want: "abcd.txt"},
		{name: "truncates by rune", spec: policy.Spec{MaxFilenameLength: 2}, declared: "жжжж.txt", want: "жж.txt"},
		{name: "empty name falls back", declared: "", want: "file"},
		{name: "dot file", declared: ".env", want: "env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.spec.MustBuild()
			stem, ext, err := buildName(cfg, nameInput{declared: tt.declared, sniffedExt: tt.sniffed, hash: noHash})
			require.NoError(t, err)
			assert.Equal(t, tt.want, stem+ext)
		})
	}
}

func TestBuildNameOptionsDisabled(t *testing.T) {
	off := false
	cfg := policy.Spec{RemoveSpaces: &off, ModMimeFix: &off, ExtensionFromMime: &off}.MustBuild()
	stem, ext, err := buildName(cfg, nameInput{declared: "a b.php.jpg", sniffedExt: ".png", hash: noHash})
	require.NoError(t, err)
	assert.Equal(t, "a b.php.jpg", stem+ext)

	stem, ext, err = buildName(cfg, nameInput{declared: "blob", sniffedExt: ".png", hash: noHash})
	require.NoError(t, err)
	assert.Equal(t, "blob", stem+ext)
}

func TestBuildNameEncrypt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	cfg := policy.Spec{EncryptName: true, LowercaseExtension: true}.MustBuild()
	stem, ext, err := buildName(cfg, nameInput{
		declared: "secret.TXT",
		hash:     func() (string, error) { return contentHash(path) },
	})
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e", stem)
	assert.Equal(t, ".txt", ext)
}

func TestCandidateName(t *testing.T) {
	assert.Equal(t, "a.txt", CandidateName("a", ".txt", 0))
	assert.Equal(t, "a1.txt", CandidateName("a", ".txt", 1))
	assert.Equal(t, "a12", CandidateName("a", "", 12))
}

func seedFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("old"), 0o644))
	}
}

func TestPickNameSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	seedFiles(t, dir, "a.txt", "a1.txt", "a2.txt")

	name, attempt, err := pickName(dir, "a", ".txt", false, 10)
	require.NoError(t, err)
	assert.Equal(t, "a3.txt", name)
	assert.Equal(t, 3, attempt)
}

func TestPickNameExhausted(t *testing.T) {
	dir := t.TempDir()
	seedFiles(t, dir, "a.txt", "a1.txt", "a2.txt")

	_, _, err := pickName(dir, "a", ".txt", false, 3)
	require.ErrorIs(t, err, appErrors.ErrFilenameCollision)
	assert.Equal(t, appErrors.KindNaming, appErrors.FromError(err).Kind)

	_, _, err = pickName(dir, "a", ".txt", false, 0)
	require.ErrorIs(t, err, appErrors.ErrFilenameCollision)
}

func TestPickNameOverwrite(t *testing.T) {
	dir := t.TempDir()
	seedFiles(t, dir, "a.txt")

	name, _, err := pickName(dir, "a", ".txt", true, 0)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", name)
}
