package processors

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/example/fileuploader/internal/errors"
)

// VideoHandler enforces duration, bitrate, resolution and codec bounds read
// from the container.
type VideoHandler struct {
	fileHandler
	prober Prober
}

// Behave validates src against the video bounds. The first violated bound is
// returned.
func (h *VideoHandler) Behave(ctx context.Context, src Source) (*ValidatedFile, error) {
	vf, err := h.validate(ctx, src)
	if err != nil {
		return nil, err
	}

	b := h.cfg.Media
	meta, err := h.prober.Probe(ctx, src.Path)
	if err != nil {
		if b.HasConstraints() {
			return nil, appErrors.Wrap(err, appErrors.ErrMetadataUnavailable, "")
		}
		h.logger.Warn("video metadata unavailable", zap.String("path", src.Path), zap.Error(err))
		return h.accept(vf), nil
	}

	if err := checkTiming(b, *meta); err != nil {
		return nil, err
	}
	if err := checkResolution(b, meta.Width, meta.Height); err != nil {
		return nil, err
	}
	if err := checkCodec(b.VideoCodecs, meta.VideoCodec, appErrors.ErrVideoCodec); err != nil {
		return nil, err
	}
	if err := checkCodec(b.AudioCodecs, meta.AudioCodec, appErrors.ErrAudioCodec); err != nil {
		return nil, err
	}
	vf.Media = meta
	return h.accept(vf), nil
}
