package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/example/fileuploader/internal/errors"
)

func TestParseAllowed(t *testing.T) {
	assert.True(t, ParseAllowed("").Any())
	assert.True(t, ParseAllowed("*").Any())
	assert.True(t, AllowedOf("jpg", "*").Any())

	set := ParseAllowed("JPG|.png, gif")
	assert.False(t, set.Any())
	assert.Equal(t, []string{"jpg", "png", "gif"}, set.Items())
	assert.True(t, set.Contains(".Png"))
	assert.True(t, set.Contains("jpg"))
	assert.False(t, set.Contains("jpeg"))
	assert.Equal(t, "jpg|png|gif", set.String())
}

func TestAllowedSetMatchIsSubstring(t *testing.T) {
	codecs := ParseAllowed("h264|hevc")
	assert.True(t, codecs.Match("H264 / AVC"))
	assert.True(t, codecs.Match("hevc"))
	assert.False(t, codecs.Match("vp9"))
	assert.False(t, codecs.Match(""))
	assert.True(t, AllowedSet{}.Match(""))
}

func TestSpecBuildDefaultsAndClamps(t *testing.T) {
	retries := -3
	cfg, err := Spec{
		Field:               "avatar",
		Kind:                "Image",
		MaxSize:             -10,
		MaxFilenameLength:   -1,
		CollisionRetryLimit: &retries,
		MaxWidth:            -5,
		MinWidth:            10,
	}.Build()
	require.NoError(t, err)

	assert.Equal(t, KindImage, cfg.Kind)
	assert.Equal(t, int64(0), cfg.MaxSize)
	assert.Equal(t, 0, cfg.MaxFilenameLength)
	assert.Equal(t, 0, cfg.CollisionRetryLimit)
	assert.Equal(t, 0, cfg.Media.MaxWidth)
	assert.Equal(t, 10, cfg.Media.MinWidth)
	assert.True(t, cfg.RemoveSpaces)
	assert.True(t, cfg.ModMimeFix)
	assert.True(t, cfg.ExtensionFromMime)
	assert.True(t, cfg.AllowedTypes.Any())
}

func TestSpecBuildDefaultRetryLimit(t *testing.T) {
	off := false
	cfg := Spec{RemoveSpaces: &off}.MustBuild()
	assert.Equal(t, KindFile, cfg.Kind)
	assert.Equal(t, DefaultCollisionRetryLimit, cfg.CollisionRetryLimit)
	assert.False(t, cfg.RemoveSpaces)
	assert.False(t, cfg.Media.HasConstraints())
}

func TestSpecBuildRejectsUnknownKind(t *testing.T) {
	_, err := Spec{Kind: "spreadsheet"}.Build()
	require.Error(t, err)
}

func TestMediaBoundsFlags(t *testing.T) {
	b := Spec{Kind: "video", VideoCodecs: "h264"}.MustBuild().Media
	assert.True(t, b.HasConstraints())
	assert.False(t, b.HasResolution())
	assert.False(t, b.HasTiming())

	b = Spec{Kind: "audio", MaxBitrate: 320}.MustBuild().Media
	assert.True(t, b.HasTiming())
}

func TestRegistryFallbackToFirstRegistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("anything")
	require.ErrorIs(t, err, appErrors.ErrEmptyRegistry)

	reg.Register("photos", Spec{Kind: "image"}.MustBuild())
	reg.Register("clips", Spec{Kind: "video"}.MustBuild())

	cfg, err := reg.Get("clips")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, cfg.Kind)

	cfg, err = reg.Get("unknown")
	require.NoError(t, err)
	assert.Equal(t, "photos", cfg.Field)

	def, err := reg.Default()
	require.NoError(t, err)
	assert.Equal(t, "photos", def.Field)
}

func TestRegistryStripsIndexSuffix(t *testing.T) {
	reg := NewRegistry()
	reg.Register("docs", Spec{}.MustBuild())
	reg.Register("clips", Spec{Kind: "video"}.MustBuild())

	cfg, err := reg.Get("clips||2")
	require.NoError(t, err)
	assert.Equal(t, "clips", cfg.Field)
	assert.Equal(t, "clips", FieldOf("clips||2"))
	assert.Equal(t, "clips", FieldOf("clips"))
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", Spec{MaxSize: 1}.MustBuild())
	reg.Register("b", Spec{}.MustBuild())
	reg.Register("a", Spec{MaxSize: 2}.MustBuild())

	assert.Equal(t, []string{"a", "b"}, reg.Fields())
	assert.Equal(t, 2, reg.Len())
	cfg, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cfg.MaxSize)
}

func TestRegisterSpecs(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterSpecs(Spec{Field: "a"}, Spec{Field: "b", Kind: "audio"}))
	assert.Equal(t, []string{"a", "b"}, reg.Fields())

	err := reg.RegisterSpecs(Spec{Field: "c", Kind: "nope"})
	require.ErrorIs(t, err, appErrors.ErrInvalidPolicy)
}

func TestPrepareDirectoryCreatesNested(t *testing.T) {
	base := t.TempDir()
	dir, err := PrepareDirectory(filepath.Join(base, "a", "b"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")
}

func TestPrepareDirectoryErrors(t *testing.T) {
	_, err := PrepareDirectory("  ")
	require.ErrorIs(t, err, appErrors.ErrUploadPath)

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = PrepareDirectory(file)
	require.ErrorIs(t, err, appErrors.ErrUploadPath)
	assert.True(t, appErrors.FromError(err).Fatal())
}
