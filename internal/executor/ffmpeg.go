package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/metrics"
	"github.com/randomparity/vpo/internal/tools"
)

// audioEncoders maps audio codec targets onto ffmpeg encoder names.
var audioEncoders = map[string]string{
	"aac":  "aac",
	"ac3":  "ac3",
	"eac3": "eac3",
	"opus": "libopus",
	"mp3":  "libmp3lame",
	"flac": "flac",
}

func audioEncoderFor(codec string) string {
	if enc, ok := audioEncoders[strings.ToLower(codec)]; ok {
		return enc
	}
	return strings.ToLower(codec)
}

// executeFFmpeg runs the stream-copy or remux/transcode strategy: build
// the argument list, write to a sentinel temp path, validate, and
// atomic-rename into place. A detected hardware-encoder failure retries
// once with software encoding.
func (x *Executor) executeFFmpeg(ctx context.Context, plan domain.Plan, file domain.FileInfo, opts Options, remux bool) (Result, error) {
	ffmpeg, err := x.registry.Require(tools.FFmpeg)
	if err != nil {
		return Result{}, err
	}

	isTranscode := plan.HasKind(domain.ActionTranscodeVideo) || plan.HasKind(domain.ActionTranscodeAudio)

	selection := EncoderSelection{Type: domain.EncoderUnknown}
	if plan.HasKind(domain.ActionTranscodeVideo) {
		target := videoTranscodeTarget(plan)
		selection, err = x.selectEncoder(ctx, ffmpeg, target, opts.Hardware, opts.FallbackToCPU)
		if err != nil {
			return Result{}, fmt.Errorf("%w: no encoder for codec %s (hardware mode %s)",
				domain.ErrPreflight, target, opts.Hardware)
		}
	}

	dest := plan.FilePath
	if target := remuxTarget(plan); target != "" {
		dest = replaceExt(plan.FilePath, target)
	}
	temp := TempPath(dest, x.cfg.TempDir)

	backup, err := x.createBackup(plan.FilePath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrPreflight, err)
	}

	cleanupFail := func() {
		_ = os.Remove(temp)
		x.safeRestoreFromBackup(backup, plan.FilePath)
	}

	timeout := x.computeTimeout(file.SizeBytes, isTranscode)

	run, runErr := x.runStrategyOnce(ctx, ffmpeg, plan, file, opts, selection, temp, timeout)

	// Hardware fault at runtime: one retry with the software encoder.
	if run != nil && (runErr != nil || run.ExitCode != 0) && selection.Type == domain.EncoderHardware &&
		looksLikeHardwareFailure(run.StderrTail()) {
		x.logger.Warn("hardware encoder failed at runtime; retrying with software",
			slog.String("encoder", selection.Encoder),
		)
		metrics.EncoderFallbacksTotal.Inc()
		_ = os.Remove(temp)
		selection = EncoderSelection{
			Encoder:          softwareEncoderFor(videoTranscodeTarget(plan)),
			Type:             domain.EncoderSoftware,
			FallbackOccurred: true,
		}
		run, runErr = x.runStrategyOnce(ctx, ffmpeg, plan, file, opts, selection, temp, timeout)
	}

	if runErr != nil {
		cleanupFail()
		return Result{}, runErr
	}
	if run.ExitCode != 0 {
		cleanupFail()
		return Result{}, fmt.Errorf("%w: ffmpeg exited %d: %s",
			domain.ErrSubprocess, run.ExitCode, run.StderrTail())
	}

	if err := x.validateOutput(temp, file.SizeBytes); err != nil {
		cleanupFail()
		return Result{}, err
	}

	outputStat, _ := os.Stat(temp)

	if err := replaceAtomic(temp, dest); err != nil {
		cleanupFail()
		return Result{}, fmt.Errorf("%w: replace failed: %v", domain.ErrValidation, err)
	}
	// A container conversion leaves the old path behind; remove it so the
	// library does not see both.
	if dest != plan.FilePath {
		_ = os.Remove(plan.FilePath)
	}

	result := Result{
		Success:    true,
		OutputPath: dest,
		BackupPath: x.finishBackup(backup),
		Message:    fmt.Sprintf("applied %d action(s)", len(plan.Actions)),
	}

	if isTranscode {
		stats := &domain.ProcessingStats{
			FilePath:         dest,
			InputBytes:       file.SizeBytes,
			Encoder:          selection.Encoder,
			EncoderType:      selection.Type,
			FallbackOccurred: selection.FallbackOccurred,
		}
		if outputStat != nil {
			stats.OutputBytes = outputStat.Size()
		}
		run.Metrics.Summarize(stats)
		result.Stats = stats
	}

	return result, nil
}

func (x *Executor) runStrategyOnce(ctx context.Context, ffmpeg *tools.Info, plan domain.Plan, file domain.FileInfo, opts Options, selection EncoderSelection, temp string, timeout time.Duration) (*runResult, error) {
	argv := buildFFmpegArgs(ffmpeg, plan, file, opts, selection, temp)
	x.logger.Debug("running ffmpeg", slog.String("args", strings.Join(argv[1:], " ")))
	return x.runSupervised(ctx, argv, timeout, opts.ProgressFn)
}

func videoTranscodeTarget(plan domain.Plan) string {
	for _, a := range plan.Actions {
		if a.Kind == domain.ActionTranscodeVideo {
			return a.TargetCodec
		}
	}
	return ""
}

// buildFFmpegArgs renders the plan as one ffmpeg invocation. Metadata-only
// plans become `-map 0 -c copy` with disposition and metadata flags; remux
// plans map surviving streams explicitly in their final order, re-encode
// where required, and synthesize new audio through filter graphs.
func buildFFmpegArgs(ffmpeg *tools.Info, plan domain.Plan, file domain.FileInfo, opts Options, selection EncoderSelection, temp string) []string {
	argv := []string{ffmpeg.Path, "-hide_banner", "-y"}
	if ffmpeg.SupportsStatsPeriod() {
		argv = append(argv, "-stats_period", "1")
	} else {
		argv = append(argv, "-stats")
	}
	argv = append(argv, "-i", plan.FilePath)

	if plan.MetadataOnly() {
		argv = append(argv, "-map", "0", "-c", "copy")
		argv = append(argv, metadataFlags(plan, identityLayout(file))...)
		if muxer := muxerForPath(plan.FilePath); muxer != "" {
			argv = append(argv, "-f", muxer)
		}
		argv = append(argv, temp)
		return argv
	}

	layout := computeLayout(plan, file)

	if plan.HasKind(domain.ActionTranscodeVideo) {
		if ffmpeg.SupportsFPSMode() {
			argv = append(argv, "-fps_mode", "passthrough")
		} else {
			argv = append(argv, "-vsync", "passthrough")
		}
	}

	for _, stream := range layout.streams {
		argv = append(argv, "-map", stream.mapArg)
	}

	if filter := synthesisFilter(layout); filter != "" {
		argv = append(argv, "-filter_complex", filter)
	}

	argv = append(argv, "-c", "copy")
	for _, stream := range layout.streams {
		switch stream.codecMode {
		case codecTranscodeVideo:
			argv = append(argv, fmt.Sprintf("-c:%d", stream.outIndex), selection.Encoder)
			if opts.CRF != nil && selection.Type == domain.EncoderSoftware {
				argv = append(argv, fmt.Sprintf("-crf:%d", stream.outIndex), strconv.Itoa(*opts.CRF))
			} else if stream.bitrate != "" {
				argv = append(argv, fmt.Sprintf("-b:%d", stream.outIndex), stream.bitrate)
			}
			if opts.Preset != "" {
				argv = append(argv, fmt.Sprintf("-preset:%d", stream.outIndex), opts.Preset)
			}
		case codecTranscodeAudio, codecSynthesis:
			argv = append(argv, fmt.Sprintf("-c:%d", stream.outIndex), audioEncoderFor(stream.codec))
			if stream.bitrate != "" {
				argv = append(argv, fmt.Sprintf("-b:%d", stream.outIndex), stream.bitrate)
			}
			if stream.channels > 0 {
				argv = append(argv, fmt.Sprintf("-ac:%d", stream.outIndex), strconv.Itoa(stream.channels))
			}
		}
		if stream.title != "" {
			argv = append(argv, fmt.Sprintf("-metadata:s:%d", stream.outIndex), "title="+stream.title)
		}
		if stream.language != "" {
			argv = append(argv, fmt.Sprintf("-metadata:s:%d", stream.outIndex), "language="+stream.language)
		}
	}

	argv = append(argv, metadataFlags(plan, layout)...)

	container := remuxTarget(plan)
	if container == "" {
		container = plan.SourceContainer
	}
	if muxer := muxerFor(container); muxer != "" {
		argv = append(argv, "-f", muxer)
	}
	argv = append(argv, temp)
	return argv
}

type codecMode int

const (
	codecCopy codecMode = iota
	codecTranscodeVideo
	codecTranscodeAudio
	codecSynthesis
)

type outStream struct {
	outIndex   int
	srcIndex   int // -1 for synthesized streams
	mapArg     string
	codecMode  codecMode
	codec      string
	bitrate    string
	channels   int
	title      string
	language   string
	filterExpr string
	filterTag  string
}

type outputLayout struct {
	streams []outStream
	// bymap from source track index to output stream index.
	outOf map[int]int
}

// identityLayout maps every source stream onto itself (`-map 0`).
func identityLayout(file domain.FileInfo) outputLayout {
	layout := outputLayout{outOf: make(map[int]int, len(file.Tracks))}
	for i, t := range file.Tracks {
		layout.outOf[t.Index] = i
	}
	return layout
}

// computeLayout orders the output streams: survivors (respecting REORDER),
// then synthesized tracks at their declared positions.
func computeLayout(plan domain.Plan, file domain.FileInfo) outputLayout {
	removed := make(map[int]bool)
	transcodeVideo := make(map[int]domain.PlannedAction)
	transcodeAudio := make(map[int]domain.PlannedAction)
	for _, a := range plan.Actions {
		switch a.Kind {
		case domain.ActionRemoveTrack:
			removed[a.TrackIndex] = true
		case domain.ActionTranscodeVideo:
			transcodeVideo[a.TrackIndex] = a
		case domain.ActionTranscodeAudio:
			transcodeAudio[a.TrackIndex] = a
		}
	}

	// Source order, then REORDER override.
	order := make([]int, 0, len(file.Tracks))
	for _, t := range file.Tracks {
		if !removed[t.Index] {
			order = append(order, t.Index)
		}
	}
	for _, a := range plan.Actions {
		if a.Kind == domain.ActionReorder && len(a.NewOrder) > 0 {
			order = order[:0]
			for _, idx := range a.NewOrder {
				if !removed[idx] {
					order = append(order, idx)
				}
			}
		}
	}

	layout := outputLayout{outOf: make(map[int]int)}
	for _, srcIndex := range order {
		stream := outStream{
			srcIndex: srcIndex,
			mapArg:   fmt.Sprintf("0:%d", srcIndex),
		}
		if a, ok := transcodeVideo[srcIndex]; ok {
			stream.codecMode = codecTranscodeVideo
			stream.codec = a.TargetCodec
			stream.bitrate = a.TargetBitrate
		} else if a, ok := transcodeAudio[srcIndex]; ok {
			stream.codecMode = codecTranscodeAudio
			stream.codec = a.TargetCodec
			stream.bitrate = a.TargetBitrate
			if a.DesiredValue == "stereo" {
				stream.channels = 2
			} else if a.DesiredValue == "5.1" {
				stream.channels = 6
			}
		}
		layout.streams = append(layout.streams, stream)
	}

	// Synthesized tracks, inserted at their declared positions.
	synthCount := 0
	for _, a := range plan.Actions {
		if a.Kind != domain.ActionSynthesizeAudio || a.Synthesis == nil {
			continue
		}
		spec := a.Synthesis
		tag := fmt.Sprintf("synth%d", synthCount)
		synthCount++

		stream := outStream{
			srcIndex:  -1,
			mapArg:    "[" + tag + "]",
			codecMode: codecSynthesis,
			codec:     spec.Codec,
			bitrate:   spec.Bitrate,
			channels:  spec.Channels,
			title:     spec.Title,
			language:  spec.Language,
			filterTag: tag,
		}
		filter := spec.DownmixFilter
		if filter == "" {
			filter = "anull"
		}
		stream.filterExpr = fmt.Sprintf("[0:%d]%s[%s]", spec.SourceIndex, filter, tag)

		layout.streams = insertStream(layout.streams, stream, spec)
	}

	for i := range layout.streams {
		layout.streams[i].outIndex = i
		if layout.streams[i].srcIndex >= 0 {
			layout.outOf[layout.streams[i].srcIndex] = i
		}
	}
	return layout
}

// insertStream places a synthesized stream per its position declaration.
func insertStream(streams []outStream, stream outStream, spec *domain.SynthesisSpec) []outStream {
	pos := len(streams)
	switch spec.Position {
	case "", "end":
	case "after_source":
		for i, s := range streams {
			if s.srcIndex == spec.SourceIndex {
				pos = i + 1
				break
			}
		}
	default:
		if n, err := strconv.Atoi(spec.Position); err == nil && n >= 1 && n <= len(streams)+1 {
			pos = n - 1
		}
	}
	streams = append(streams, outStream{})
	copy(streams[pos+1:], streams[pos:])
	streams[pos] = stream
	return streams
}

func synthesisFilter(layout outputLayout) string {
	var parts []string
	for _, s := range layout.streams {
		if s.filterExpr != "" {
			parts = append(parts, s.filterExpr)
		}
	}
	return strings.Join(parts, ";")
}

// metadataFlags renders flag/title/language/container-tag actions against
// the output layout's stream indices.
func metadataFlags(plan domain.Plan, layout outputLayout) []string {
	// Collect desired dispositions per output stream so default+forced
	// combine into one flag.
	type disposition struct {
		setDefault, clearDefault bool
		setForced, clearForced   bool
	}
	dispositions := make(map[int]*disposition)
	dispFor := func(srcIndex int) *disposition {
		out, ok := layout.outOf[srcIndex]
		if !ok {
			return nil
		}
		if dispositions[out] == nil {
			dispositions[out] = &disposition{}
		}
		return dispositions[out]
	}

	var argv []string
	for _, a := range plan.Actions {
		switch a.Kind {
		case domain.ActionSetDefault:
			if d := dispFor(a.TrackIndex); d != nil {
				d.setDefault = true
			}
		case domain.ActionClearDefault:
			if d := dispFor(a.TrackIndex); d != nil {
				d.clearDefault = true
			}
		case domain.ActionSetForced:
			if d := dispFor(a.TrackIndex); d != nil {
				d.setForced = true
			}
		case domain.ActionClearForced:
			if d := dispFor(a.TrackIndex); d != nil {
				d.clearForced = true
			}
		case domain.ActionSetTitle:
			if out, ok := layout.outOf[a.TrackIndex]; ok {
				argv = append(argv, fmt.Sprintf("-metadata:s:%d", out), "title="+a.DesiredValue)
			}
		case domain.ActionSetLanguage:
			if out, ok := layout.outOf[a.TrackIndex]; ok {
				argv = append(argv, fmt.Sprintf("-metadata:s:%d", out), "language="+a.DesiredValue)
			}
		case domain.ActionSetContainerMetadata:
			argv = append(argv, "-metadata", fmt.Sprintf("%s=%s", a.CurrentValue, a.DesiredValue))
		}
	}

	outs := make([]int, 0, len(dispositions))
	for out := range dispositions {
		outs = append(outs, out)
	}
	sort.Ints(outs)
	for _, out := range outs {
		d := dispositions[out]
		var flags []string
		if d.setDefault {
			flags = append(flags, "default")
		}
		if d.setForced {
			flags = append(flags, "forced")
		}
		value := "0"
		if len(flags) > 0 {
			value = strings.Join(flags, "+")
		}
		argv = append(argv, fmt.Sprintf("-disposition:%d", out), value)
	}

	return argv
}

func muxerForPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if m := muxerFor(ext); m != "" {
		return m
	}
	return ext
}

func replaceExt(path, container string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + domain.NormalizeContainer(container)
}
