package processors

import (
	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/policy"
)

// checkTiming enforces duration bounds before bitrate bounds, max before min.
func checkTiming(b policy.MediaBounds, m MediaMeta) error {
	switch {
	case b.MaxDuration > 0 && m.Duration > b.MaxDuration:
		return appErrors.Clonef(appErrors.ErrVideoDuration,
			"the duration %.2fs exceeds the maximum of %.2fs", m.Duration, b.MaxDuration)
	case b.MinDuration > 0 && m.Duration < b.MinDuration:
		return appErrors.Clonef(appErrors.ErrVideoDuration,
			"the duration %.2fs is below the minimum of %.2fs", m.Duration, b.MinDuration)
	case b.MaxBitrate > 0 && m.Bitrate > b.MaxBitrate:
		return appErrors.Clonef(appErrors.ErrVideoBitrate,
			"the bitrate %.0fkbps exceeds the maximum of %.0fkbps", m.Bitrate, b.MaxBitrate)
	case b.MinBitrate > 0 && m.Bitrate < b.MinBitrate:
		return appErrors.Clonef(appErrors.ErrVideoBitrate,
			"the bitrate %.0fkbps is below the minimum of %.0fkbps", m.Bitrate, b.MinBitrate)
	}
	return nil
}

// checkResolution enforces maxWidth, maxHeight, minWidth, minHeight in order.
func checkResolution(b policy.MediaBounds, width, height int) error {
	switch {
	case b.MaxWidth > 0 && width > b.MaxWidth:
		return appErrors.Clonef(appErrors.ErrResolution, "the width %dpx exceeds the maximum of %dpx", width, b.MaxWidth)
	case b.MaxHeight > 0 && height > b.MaxHeight:
		return appErrors.Clonef(appErrors.ErrResolution, "the height %dpx exceeds the maximum of %dpx", height, b.MaxHeight)
	case b.MinWidth > 0 && width < b.MinWidth:
		return appErrors.Clonef(appErrors.ErrResolution, "the width %dpx is below the minimum of %dpx", width, b.MinWidth)
	case b.MinHeight > 0 && height < b.MinHeight:
		return appErrors.Clonef(appErrors.ErrResolution, "the height %dpx is below the minimum of %dpx", height, b.MinHeight)
	}
	return nil
}

func checkCodec(allowed policy.AllowedSet, codec string, base *appErrors.Error) error {
	if allowed.Match(codec) {
		return nil
	}
	return appErrors.Clonef(base, "%s (got %q, allowed %s)", base.Message, codec, allowed)
}
