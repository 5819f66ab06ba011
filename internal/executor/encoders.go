package executor

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/tools"
)

// softwareEncoders maps codec targets onto ffmpeg software encoders.
var softwareEncoders = map[string]string{
	"hevc": "libx265",
	"h265": "libx265",
	"h264": "libx264",
	"vp9":  "libvpx-vp9",
	"av1":  "libaom-av1",
}

// hardwareEncoders maps codec -> platform -> encoder name.
var hardwareEncoders = map[string]map[string]string{
	"hevc": {"nvenc": "hevc_nvenc", "qsv": "hevc_qsv", "vaapi": "hevc_vaapi"},
	"h265": {"nvenc": "hevc_nvenc", "qsv": "hevc_qsv", "vaapi": "hevc_vaapi"},
	"h264": {"nvenc": "h264_nvenc", "qsv": "h264_qsv", "vaapi": "h264_vaapi"},
	"av1":  {"nvenc": "av1_nvenc", "qsv": "av1_qsv"},
}

// hardwarePriority is the probe order for hardware mode auto.
var hardwarePriority = []string{"nvenc", "qsv", "vaapi"}

// hwErrorPatterns are stderr fragments that indicate a hardware encoder
// failed at runtime; any match triggers the one-shot software retry.
var hwErrorPatterns = []string{
	"cannot load",
	"not found",
	"cuda",
	"nvenc",
	"device",
	"memory",
	"initialization failed",
	"could not open",
	"resource",
}

// EncoderSelection is the outcome of encoder selection for one transcode.
type EncoderSelection struct {
	Encoder          string
	Type             domain.EncoderType
	Platform         string
	FallbackOccurred bool
}

// softwareEncoderFor returns the software encoder for a codec target.
func softwareEncoderFor(codec string) string {
	if enc, ok := softwareEncoders[strings.ToLower(codec)]; ok {
		return enc
	}
	return "libx265"
}

// selectEncoder picks an encoder for the target codec honoring the
// hardware mode (auto | nvenc | qsv | vaapi | none). A hardware candidate
// must both be listed by the ffmpeg build and pass a runtime probe.
func (x *Executor) selectEncoder(ctx context.Context, ffmpeg *tools.Info, codec, hwMode string, fallbackToCPU bool) (EncoderSelection, error) {
	software := EncoderSelection{Encoder: softwareEncoderFor(codec), Type: domain.EncoderSoftware}

	switch hwMode {
	case "", "none":
		return software, nil

	case "auto":
		for _, platform := range hardwarePriority {
			encoder, ok := hardwareEncoders[strings.ToLower(codec)][platform]
			if !ok || !ffmpeg.HasEncoder(encoder) {
				continue
			}
			if x.probeEncoder(ctx, ffmpeg.Path, encoder) {
				return EncoderSelection{Encoder: encoder, Type: domain.EncoderHardware, Platform: platform}, nil
			}
		}
		software.FallbackOccurred = true
		return software, nil

	default:
		encoder, ok := hardwareEncoders[strings.ToLower(codec)][hwMode]
		if ok && ffmpeg.HasEncoder(encoder) && x.probeEncoder(ctx, ffmpeg.Path, encoder) {
			return EncoderSelection{Encoder: encoder, Type: domain.EncoderHardware, Platform: hwMode}, nil
		}
		if fallbackToCPU {
			software.FallbackOccurred = true
			return software, nil
		}
		return EncoderSelection{}, domain.ErrToolMissing
	}
}

// probeEncoder runs a tiny null-sink encode to verify the encoder really
// initializes on this machine (a listed encoder can still fail when the
// device or driver is absent).
func (x *Executor) probeEncoder(ctx context.Context, ffmpegPath, encoder string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, ffmpegPath,
		"-hide_banner", "-v", "error",
		"-f", "lavfi", "-i", "color=black:s=128x128:d=0.1",
		"-c:v", encoder,
		"-f", "null", "-",
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run() == nil
}

// looksLikeHardwareFailure matches stderr output against the known
// hardware failure patterns.
func looksLikeHardwareFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, pattern := range hwErrorPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
