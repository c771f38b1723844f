package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober reads container metadata from a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*MediaMeta, error)
}

// FFProbe runs the ffprobe binary and parses its JSON report.
type FFProbe struct {
	Binary string
}

// NewFFProbe returns a prober using bin, or "ffprobe" from PATH when empty.
func NewFFProbe(bin string) *FFProbe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFProbe{Binary: bin}
}

// Probe runs ffprobe against path.
func (p *FFProbe) Probe(ctx context.Context, path string) (*MediaMeta, error) {
	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	return parseProbeOutput(out)
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
	BitRate   string `json:"bit_rate"`
}

type probeReport struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// parseProbeOutput maps an ffprobe JSON report onto MediaMeta. Fields ffprobe
// does not report stay zero. Container values win over stream values.
func parseProbeOutput(out []byte) (*MediaMeta, error) {
	var report probeReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	if len(report.Streams) == 0 && report.Format.Duration == "" {
		return nil, fmt.Errorf("%w: no streams reported", ErrProbeFailed)
	}

	meta := &MediaMeta{
		Duration: parseFloat(report.Format.Duration),
		Bitrate:  parseFloat(report.Format.BitRate) / 1000,
	}
	var streamBits float64
	for _, s := range report.Streams {
		switch strings.ToLower(s.CodecType) {
		case "video":
			if meta.VideoCodec == "" {
				meta.VideoCodec = s.CodecName
				meta.Width = s.Width
				meta.Height = s.Height
			}
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = s.CodecName
			}
		default:
			continue
		}
		if meta.Duration == 0 {
			meta.Duration = parseFloat(s.Duration)
		}
		streamBits += parseFloat(s.BitRate)
	}
	if meta.Bitrate == 0 {
		meta.Bitrate = streamBits / 1000
	}
	return meta, nil
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
