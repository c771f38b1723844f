package processors

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	appErrors "github.com/example/fileuploader/internal/errors"
)

// ImageHandler adds pixel dimension bounds to the generic checks.
type ImageHandler struct {
	fileHandler
}

// Behave validates src, decodes its dimensions and enforces the resolution bounds.
func (h *ImageHandler) Behave(ctx context.Context, src Source) (*ValidatedFile, error) {
	vf, err := h.validate(ctx, src)
	if err != nil {
		return nil, err
	}

	meta, err := decodeImage(src.Path)
	if err != nil {
		if h.cfg.Media.HasResolution() {
			return nil, appErrors.Wrap(err, appErrors.ErrMetadataUnavailable, "")
		}
		h.logger.Warn("image dimensions unavailable", zap.String("path", src.Path), zap.Error(err))
		return h.accept(vf), nil
	}
	if err := checkResolution(h.cfg.Media, meta.Width, meta.Height); err != nil {
		return nil, err
	}
	vf.Image = meta
	return h.accept(vf), nil
}

func decodeImage(path string) (*ImageMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, err
	}
	return &ImageMeta{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}
