package domain

type EncoderType string

const (
	EncoderHardware EncoderType = "hardware"
	EncoderSoftware EncoderType = "software"
	EncoderUnknown  EncoderType = "unknown"
)

// ProcessingStats is one append-only row per executed transcode.
type ProcessingStats struct {
	ID               int64       `db:"id" json:"id"`
	JobID            string      `db:"job_id" json:"jobId"`
	FilePath         string      `db:"file_path" json:"filePath"`
	InputBytes       int64       `db:"input_bytes" json:"inputBytes"`
	OutputBytes      int64       `db:"output_bytes" json:"outputBytes"`
	DurationSeconds  float64     `db:"duration_seconds" json:"durationSeconds"`
	Encoder          string      `db:"encoder" json:"encoder"`
	EncoderType      EncoderType `db:"encoder_type" json:"encoderType"`
	FallbackOccurred bool        `db:"fallback_occurred" json:"fallbackOccurred"`
	MeanFPS          float64     `db:"mean_fps" json:"meanFps"`
	PeakFPS          float64     `db:"peak_fps" json:"peakFps"`
	MeanBitrateKbps  float64     `db:"mean_bitrate_kbps" json:"meanBitrateKbps"`
	TotalFrames      int64       `db:"total_frames" json:"totalFrames"`
	CreatedAt        string      `db:"created_at" json:"createdAt"`
}

// LanguageAnalysis is the per-track result of an external language
// detection pass (primary language plus confidence).
type LanguageAnalysis struct {
	ID           int64   `db:"id" json:"id"`
	FileID       int64   `db:"file_id" json:"fileId"`
	TrackIndex   int     `db:"track_index" json:"trackIndex"`
	Language     string  `db:"language" json:"language"`
	Confidence   float64 `db:"confidence" json:"confidence"`
	IsOriginal   bool    `db:"is_original" json:"isOriginal"`
	IsCommentary bool    `db:"is_commentary" json:"isCommentary"`
	// Classification is one of speech, music, sfx, non_speech.
	Classification string `db:"classification" json:"classification"`
	CreatedAt      string `db:"created_at" json:"createdAt"`
}

// LanguageSegment is one detected language span inside an audio track.
type LanguageSegment struct {
	ID         int64   `db:"id" json:"id"`
	FileID     int64   `db:"file_id" json:"fileId"`
	TrackIndex int     `db:"track_index" json:"trackIndex"`
	Language   string  `db:"language" json:"language"`
	StartSec   float64 `db:"start_sec" json:"startSec"`
	EndSec     float64 `db:"end_sec" json:"endSec"`
	Fraction   float64 `db:"fraction" json:"fraction"`
}
