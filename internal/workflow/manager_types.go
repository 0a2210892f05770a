package workflow

import (
	"context"
	"errors"
	"time"

	"dubbing/internal/config"
	"dubbing/internal/queue"
	"dubbing/internal/stage"
)

var (
	errJobCancelled = errors.New("job cancelled")
	errShutdown     = errors.New("workflow shutdown")
	errJobTimeout   = errors.New("job exceeded its time budget")
	// errJobFinished aborts worker writes once the job left this run.
	errJobFinished = errors.New("job no longer owned by this run")
)

// pipelineStage is one ordered step executed per job.
type pipelineStage struct {
	name   string
	status queue.Status
	weight int
	run    func(ctx context.Context, run *jobRun, state *pipelineState) error
}

// pipelineState carries artifact references between stages.
type pipelineState struct {
	audio       stage.AudioHandle
	transcript  stage.Transcription
	translation stage.Translation
	segments    []stage.AudioSegment
	track       stage.AudioTrack
	output      string
}

// jobRun is one worker's attempt at a job.
type jobRun struct {
	jobID    string
	attempt  int
	input    string
	language string
	workDir  string
	started  time.Time
	cancel   context.CancelCauseFunc
}

func (m *Manager) buildPlan() []pipelineStage {
	plan := []pipelineStage{
		{name: config.WeightExtract, status: queue.StatusExtractingAudio, run: m.extractAudio},
		{name: config.WeightTranscribe, status: queue.StatusTranscribing, run: m.transcribe},
		{name: config.WeightTranslate, status: queue.StatusTranslating, run: m.translate},
		{name: config.WeightSynthesize, status: queue.StatusSynthesizingSpeech, run: m.synthesizeSpeech},
		{name: config.WeightAssemble, status: queue.StatusAssembling, run: m.assembleAudio},
		{name: config.WeightCombine, status: queue.StatusAssembling, run: m.combineVideo},
	}
	if m.cfg.EnableQualityValidation && m.deps.Quality != nil {
		plan = append(plan, pipelineStage{name: config.WeightQuality, status: queue.StatusAssembling, run: m.validateQuality})
	}
	for i := range plan {
		weight := m.cfg.StageWeights[plan[i].name]
		if weight <= 0 {
			weight = 1
		}
		plan[i].weight = weight
	}
	return plan
}

// progressAfter returns the percentage reached once plan[index] succeeds.
func progressAfter(plan []pipelineStage, index int, fraction float64) int {
	total, done := 0, 0.0
	for i, st := range plan {
		total += st.weight
		switch {
		case i < index:
			done += float64(st.weight)
		case i == index:
			done += float64(st.weight) * fraction
		}
	}
	if total == 0 {
		return 0
	}
	return int(100*done/float64(total) + 0.5)
}
