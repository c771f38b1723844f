// Package policy describes per-field upload rules and the registry that maps
// form fields to them.
package policy

import (
	"fmt"
	"strings"
)

// Kind selects the handler variant used for a field.
type Kind string

const (
	KindFile  Kind = "file"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// ParseKind accepts the kind names used in configuration files.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", KindFile:
		return KindFile, nil
	case KindImage:
		return KindImage, nil
	case KindVideo:
		return KindVideo, nil
	case KindAudio:
		return KindAudio, nil
	default:
		return "", fmt.Errorf("unknown policy kind %q", raw)
	}
}

// DefaultCollisionRetryLimit matches the number of numbered names tried before
// giving up on a colliding upload.
const DefaultCollisionRetryLimit = 100

// MediaBounds holds the optional numeric and codec constraints of media fields.
// A zero bound is not checked.
type MediaBounds struct {
	MinWidth    int
	MaxWidth    int
	MinHeight   int
	MaxHeight   int
	MinDuration float64 // seconds
	MaxDuration float64
	MinBitrate  float64 // kbps
	MaxBitrate  float64
	VideoCodecs AllowedSet
	AudioCodecs AllowedSet
}

// HasResolution reports whether any width or height bound is set.
func (b MediaBounds) HasResolution() bool {
	return b.MinWidth > 0 || b.MaxWidth > 0 || b.MinHeight > 0 || b.MaxHeight > 0
}

// HasTiming reports whether any duration or bitrate bound is set.
func (b MediaBounds) HasTiming() bool {
	return b.MinDuration > 0 || b.MaxDuration > 0 || b.MinBitrate > 0 || b.MaxBitrate > 0
}

// HasConstraints reports whether anything beyond wildcards is configured.
func (b MediaBounds) HasConstraints() bool {
	return b.HasResolution() || b.HasTiming() || !b.VideoCodecs.Any() || !b.AudioCodecs.Any()
}

// Config is the validation and placement rule set of one field. Build it from a
// Spec; values are copied into the registry and treated as read-only.
type Config struct {
	Field               string
	Kind                Kind
	AllowedTypes        AllowedSet
	MaxSize             int64
	Directory           string
	FileName            string
	Overwrite           bool
	EncryptName         bool
	RemoveSpaces        bool
	LowercaseExtension  bool
	ModMimeFix          bool
	ExtensionFromMime   bool
	SkipOnError         bool
	MaxFilenameLength   int
	CollisionRetryLimit int
	Media               MediaBounds
}

// WithDirectory returns a copy of c pointing at dir.
func (c Config) WithDirectory(dir string) Config {
	c.Directory = dir
	return c
}

// Spec is the declarative, config-file form of a Config.
type Spec struct {
	Field               string  `mapstructure:"field" json:"field"`
	Kind                string  `mapstructure:"kind" json:"kind"`
	AllowedTypes        string  `mapstructure:"allowed_types" json:"allowed_types"`
	MaxSize             int64   `mapstructure:"max_size" json:"max_size"`
	Directory           string  `mapstructure:"directory" json:"directory"`
	FileName            string  `mapstructure:"file_name" json:"file_name"`
	Overwrite           bool    `mapstructure:"overwrite" json:"overwrite"`
	EncryptName         bool    `mapstructure:"encrypt_name" json:"encrypt_name"`
	RemoveSpaces        *bool   `mapstructure:"remove_spaces" json:"remove_spaces"`
	LowercaseExtension  bool    `mapstructure:"lowercase_extension" json:"lowercase_extension"`
	ModMimeFix          *bool   `mapstructure:"mod_mime_fix" json:"mod_mime_fix"`
	ExtensionFromMime   *bool   `mapstructure:"extension_from_mime" json:"extension_from_mime"`
	SkipOnError         bool    `mapstructure:"skip_on_error" json:"skip_on_error"`
	MaxFilenameLength   int     `mapstructure:"max_filename_length" json:"max_filename_length"`
	CollisionRetryLimit *int    `mapstructure:"collision_retry_limit" json:"collision_retry_limit"`
	MinWidth            int     `mapstructure:"min_width" json:"min_width"`
	MaxWidth            int     `mapstructure:"max_width" json:"max_width"`
	MinHeight           int     `mapstructure:"min_height" json:"min_height"`
	MaxHeight           int     `mapstructure:"max_height" json:"max_height"`
	MinDuration         float64 `mapstructure:"min_duration" json:"min_duration"`
	MaxDuration         float64 `mapstructure:"max_duration" json:"max_duration"`
	MinBitrate          float64 `mapstructure:"min_bitrate" json:"min_bitrate"`
	MaxBitrate          float64 `mapstructure:"max_bitrate" json:"max_bitrate"`
	VideoCodecs         string  `mapstructure:"video_codecs" json:"video_codecs"`
	AudioCodecs         string  `mapstructure:"audio_codecs" json:"audio_codecs"`
}

// Build validates the spec and returns the Config. Size and length limits are
// clamped to zero; unset flags take their defaults.
func (s Spec) Build() (Config, error) {
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Field:               strings.TrimSpace(s.Field),
		Kind:                kind,
		AllowedTypes:        ParseAllowed(s.AllowedTypes),
		MaxSize:             max(s.MaxSize, 0),
		Directory:           strings.TrimSpace(s.Directory),
		FileName:            strings.TrimSpace(s.FileName),
		Overwrite:           s.Overwrite,
		EncryptName:         s.EncryptName,
		RemoveSpaces:        boolOr(s.RemoveSpaces, true),
		LowercaseExtension:  s.LowercaseExtension,
		ModMimeFix:          boolOr(s.ModMimeFix, true),
		ExtensionFromMime:   boolOr(s.ExtensionFromMime, true),
		SkipOnError:         s.SkipOnError,
		MaxFilenameLength:   max(s.MaxFilenameLength, 0),
		CollisionRetryLimit: DefaultCollisionRetryLimit,
	}
	if s.CollisionRetryLimit != nil {
		cfg.CollisionRetryLimit = max(*s.CollisionRetryLimit, 0)
	}
	if kind != KindFile {
		cfg.Media = MediaBounds{
			MinWidth:    max(s.MinWidth, 0),
			MaxWidth:    max(s.MaxWidth, 0),
			MinHeight:   max(s.MinHeight, 0),
			MaxHeight:   max(s.MaxHeight, 0),
			MinDuration: max(s.MinDuration, 0),
			MaxDuration: max(s.MaxDuration, 0),
			MinBitrate:  max(s.MinBitrate, 0),
			MaxBitrate:  max(s.MaxBitrate, 0),
			VideoCodecs: ParseAllowed(s.VideoCodecs),
			AudioCodecs: ParseAllowed(s.AudioCodecs),
		}
	}
	return cfg, nil
}

// MustBuild is Build for statically known specs; it panics on an invalid kind.
func (s Spec) MustBuild() Config {
	cfg, err := s.Build()
	if err != nil {
		panic(err)
	}
	return cfg
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
