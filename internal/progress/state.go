package progress

import "time"

// Stage names one pipeline stage.
type Stage string

const (
	StageSubtitles    Stage = "subtitles"
	StageAnalysis     Stage = "analysis"
	StageSegmentation Stage = "segmentation"
	StageNarration    Stage = "narration"
	StageEditing      Stage = "editing"
	StageCopyright    Stage = "copyright"
	StageUpload       Stage = "upload"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageSubtitles,
	StageAnalysis,
	StageSegmentation,
	StageNarration,
	StageEditing,
	StageCopyright,
	StageUpload,
}

// Checkpoint returns the overall progress reached when stage completes.
func Checkpoint(stage Stage) float64 {
	switch stage {
	case StageSubtitles:
		return 15
	case StageAnalysis:
		return 30
	case StageSegmentation:
		return 45
	case StageNarration:
		return 60
	case StageEditing:
		return 75
	case StageCopyright:
		return 90
	case StageUpload:
		return 100
	default:
		return 0
	}
}

// Status is a stage's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// State is one progress snapshot. Consumers treat each snapshot as a
// replacement for the previous one.
type State struct {
	Stage    Stage     `json:"stage"`
	Status   Status    `json:"status"`
	Progress float64   `json:"progress"`
	Error    string    `json:"error,omitempty"`
	URL      string    `json:"url,omitempty"`
	At       time.Time `json:"at,omitzero"`
}

// Final reports whether s ends a job: success at upload, failure, or cancellation.
func (s State) Final() bool {
	switch s.Status {
	case StatusFailed, StatusCancelled:
		return true
	case StatusCompleted:
		return s.Stage == StageUpload
	default:
		return false
	}
}

// UploadProgress rescales upload sub-progress (0..100) into the 90..100 band.
func UploadProgress(percentage float64) float64 {
	percentage = min(max(percentage, 0), 100)
	return Checkpoint(StageCopyright) + percentage*0.1
}

// Publisher receives progress snapshots.
type Publisher interface {
	Publish(State)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(State)

// Publish calls f.
func (f PublisherFunc) Publish(s State) { f(s) }

// Discard drops every snapshot.
var Discard Publisher = PublisherFunc(func(State) {})
