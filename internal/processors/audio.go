package processors

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/example/fileuploader/internal/errors"
)

// AudioHandler enforces duration, bitrate and audio codec bounds.
type AudioHandler struct {
	fileHandler
	prober Prober
}

// Behave validates src against the audio bounds.
func (h *AudioHandler) Behave(ctx context.Context, src Source) (*ValidatedFile, error) {
	vf, err := h.validate(ctx, src)
	if err != nil {
		return nil, err
	}

	b := h.cfg.Media
	meta, err := h.prober.Probe(ctx, src.Path)
	if err != nil {
		if b.HasTiming() || !b.AudioCodecs.Any() {
			return nil, appErrors.Wrap(err, appErrors.ErrMetadataUnavailable, "")
		}
		h.logger.Warn("audio metadata unavailable", zap.String("path", src.Path), zap.Error(err))
		return h.accept(vf), nil
	}

	if err := checkTiming(b, *meta); err != nil {
		return nil, err
	}
	if err := checkCodec(b.AudioCodecs, meta.AudioCodec, appErrors.ErrAudioCodec); err != nil {
		return nil, err
	}
	meta.Width, meta.Height, meta.VideoCodec = 0, 0, ""
	vf.Media = meta
	return h.accept(vf), nil
}
