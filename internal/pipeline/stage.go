package pipeline

import "fmt"

type Stage string

const (
	StageDownload       Stage = "Download"
	StageAudio          Stage = "Audio extraction"
	StageTranscription  Stage = "Transcription"
	StageTranscriptSave Stage = "Transcript saving"
	StageTranscriptLoad Stage = "Transcript loading"
	StageSummarization  Stage = "Summarization"
	StageClipExtraction Stage = "Clip extraction"
	StageClipMetadata   Stage = "Clip metadata"
	StageClipCutting    Stage = "Clip cutting"
	StageMerge          Stage = "Merge"
	StageInternal       Stage = "Internal"
)

// StageError names the stage a Job failed in. Its message is what the Job
// records as its error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func wrap(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
