// Package processors validates uploaded files against their field policy and
// computes where they should land. Handlers never write to the destination.
package processors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/fileuploader/internal/policy"
)

// Source is the scratch copy of one upload as seen by a handler.
type Source struct {
	Key  string
	Name string // client-declared name, possibly with path components
	Type string // client-declared MIME type, informational only
	Path string
	Size int64 // declared size; validation uses the scratch file's real size
}

// ImageMeta is the decoded metadata of an image upload.
type ImageMeta struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// MediaMeta is the decoded container metadata of a video or audio upload.
type MediaMeta struct {
	Duration   float64 `json:"duration"` // seconds
	Bitrate    float64 `json:"bitrate"`  // kbps
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
}

// ValidatedFile is the outcome of a successful Behave call.
type ValidatedFile struct {
	Field       string      `json:"field"`
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	Size        int64       `json:"size"`
	ContentType string      `json:"type"`
	Kind        policy.Kind `json:"kind"`
	Image       *ImageMeta  `json:"image,omitempty"`
	Media       *MediaMeta  `json:"media,omitempty"`

	Stem       string `json:"-"`
	Ext        string `json:"-"`
	Directory  string `json:"-"`
	SourcePath string `json:"-"`
	Overwrite  bool   `json:"-"`
	// Attempt is the collision suffix index Name was chosen with.
	Attempt int `json:"-"`
	// AttemptLimit bounds the suffix walk, see CandidateNames.
	AttemptLimit int `json:"-"`
}

// CandidateNames lists the names still available to this file, starting with
// Name. Storage walks them again at commit time when Name has been taken.
func (v *ValidatedFile) CandidateNames() []string {
	if v.Overwrite {
		return []string{v.Name}
	}
	limit := max(v.AttemptLimit, 1)
	names := make([]string, 0, max(limit-v.Attempt, 1))
	for i := v.Attempt; i < limit; i++ {
		names = append(names, CandidateName(v.Stem, v.Ext, i))
	}
	if len(names) == 0 {
		names = append(names, v.Name)
	}
	return names
}

// Committed returns a copy of v that reflects the name storage actually used.
func (v *ValidatedFile) Committed(path, name string) *ValidatedFile {
	c := *v
	c.Path = path
	c.Name = name
	return &c
}

// Handler validates one upload and computes its final name and path.
type Handler interface {
	Behave(ctx context.Context, src Source) (*ValidatedFile, error)
	ScratchPath() string
	DestinationPath() string
}

// Factory builds the handler variant associated with a policy kind.
type Factory struct {
	prober Prober
	logger *zap.Logger
}

// FactoryOption customises a Factory.
type FactoryOption func(*Factory)

// WithProber replaces the default ffprobe-backed prober.
func WithProber(p Prober) FactoryOption {
	return func(f *Factory) { f.prober = p }
}

// WithLogger attaches a logger to every handler built by the factory.
func WithLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFactory creates a handler factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{prober: NewFFProbe(""), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build returns a fresh handler for cfg. Handlers are single-use.
func (f *Factory) Build(cfg policy.Config) (Handler, error) {
	base := fileHandler{cfg: cfg, logger: f.logger.With(zap.String("field", cfg.Field), zap.String("kind", string(cfg.Kind)))}
	switch cfg.Kind {
	case policy.KindFile, "":
		return &FileHandler{fileHandler: base}, nil
	case policy.KindImage:
		return &ImageHandler{fileHandler: base}, nil
	case policy.KindVideo:
		return &VideoHandler{fileHandler: base, prober: f.prober}, nil
	case policy.KindAudio:
		return &AudioHandler{fileHandler: base, prober: f.prober}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, cfg.Kind)
	}
}
