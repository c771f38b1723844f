package processors

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/policy"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageHandlerDecodesDimensions(t *testing.T) {
	h, _ := buildHandler(t, policy.Spec{Kind: "image", AllowedTypes: "png", MaxWidth: 100, MaxHeight: 100})
	vf, err := h.Behave(context.Background(), Source{Name: "dot.png", Path: writeScratch(t, pngBytes(t, 20, 10))})
	require.NoError(t, err)

	require.NotNil(t, vf.Image)
	assert.Equal(t, 20, vf.Image.Width)
	assert.Equal(t, 10, vf.Image.Height)
	assert.Equal(t, "png", vf.Image.Format)
	assert.Equal(t, "image/png", vf.ContentType)
}

func TestImageHandlerBounds(t *testing.T) {
	tests := []struct {
		name string
		spec policy.Spec
		msg  string
	}{
		{name: "max width", spec: policy.Spec{MaxWidth: 10}, msg: "width 20px exceeds"},
		{name: "max height", spec: policy.Spec{MaxHeight: 5}, msg: "height 10px exceeds"},
		{name: "min width", spec: policy.Spec{MinWidth: 30}, msg: "width 20px is below"},
		{name: "min height", spec: policy.Spec{MinHeight: 11}, msg: "height 10px is below"},
		{name: "max width checked before min height", spec: policy.Spec{MaxWidth: 10, MinHeight: 11}, msg: "width 20px exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.spec.Kind = "image"
			h, _ := buildHandler(t, tt.spec)
			_, err := h.Behave(context.Background(), Source{Name: "a.png", Path: writeScratch(t, pngBytes(t, 20, 10))})
			require.ErrorIs(t, err, appErrors.ErrResolution)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestImageHandlerUndecodable(t *testing.T) {
	h, _ := buildHandler(t, policy.Spec{Kind: "image", MinWidth: 1})
	_, err := h.Behave(context.Background(), Source{Name: "a.png", Path: writeScratch(t, []byte("not an image"))})
	require.ErrorIs(t, err, appErrors.ErrMetadataUnavailable)

	h, _ = buildHandler(t, policy.Spec{Kind: "image"})
	vf, err := h.Behave(context.Background(), Source{Name: "a.png", Path: writeScratch(t, []byte("not an image"))})
	require.NoError(t, err)
	assert.Nil(t, vf.Image)
}
