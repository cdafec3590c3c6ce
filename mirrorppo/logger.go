package mirrorppo

import (
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/symrl/mirrorrl/telemetry"
)

// A Logger logs status messages which are produced during
// training.
type Logger interface {
	// LogIteration is called after every iteration's
	// batch has been sampled.
	LogIteration(iter, batchSteps, totalSteps int, meanReturn float64)

	// LogEpoch is called after every epoch of an update.
	// The record is nil if no updates were made.
	LogEpoch(epoch int, mean *LossRecord, gradRMS float64)

	// LogSkip is called when a minibatch is discarded due
	// to numerical instability.
	LogSkip(epoch, minibatch int)

	// LogEarlyStop is called when the KL divergence
	// exceeds its target.
	LogEarlyStop(epoch int, kl float64)

	// LogTimes reports the durations of one iteration.
	LogTimes(sample, optimize, eval, elapsed time.Duration)

	// LogEval reports the evaluation metrics of an
	// iteration.
	LogEval(iter int, metrics []telemetry.Row)

	// LogCheckpoint is called when a new best policy is
	// saved.
	LogCheckpoint(path string, reward float64)
}

// StandardLogger is a Logger which uses the log package.
//
// A Field of name <N> controls whether or not the Log<N>
// method does anything.
type StandardLogger struct {
	Iteration  bool
	Epoch      bool
	Skip       bool
	EarlyStop  bool
	Times      bool
	Eval       bool
	Checkpoint bool
}

// NewStandardLogger creates a StandardLogger with every
// event enabled.
func NewStandardLogger() *StandardLogger {
	return &StandardLogger{
		Iteration:  true,
		Epoch:      true,
		Skip:       true,
		EarlyStop:  true,
		Times:      true,
		Eval:       true,
		Checkpoint: true,
	}
}

// LogIteration logs the size and mean return of a batch.
func (s *StandardLogger) LogIteration(iter, batchSteps, totalSteps int, meanReturn float64) {
	if s.Iteration {
		log.Printf("iter %d: steps=%s total=%s mean_return=%f", iter,
			humanize.Comma(int64(batchSteps)), humanize.Comma(int64(totalSteps)),
			meanReturn)
	}
}

// LogEpoch logs the mean loss terms of an epoch.
func (s *StandardLogger) LogEpoch(epoch int, mean *LossRecord, gradRMS float64) {
	if !s.Epoch {
		return
	}
	if mean == nil {
		log.Printf("epoch %d: no updates made", epoch)
		return
	}
	log.Printf("epoch %d: actor=%f entropy=%f critic=%f ratio=%f mirror=%f grad_rms=%e",
		epoch, mean.Actor, mean.Entropy, mean.Critic, mean.Ratio, mean.Mirror, gradRMS)
}

// LogSkip logs a discarded minibatch.
func (s *StandardLogger) LogSkip(epoch, minibatch int) {
	if s.Skip {
		log.Printf("epoch %d: skipping minibatch %d (unstable log-probs)", epoch, minibatch)
	}
}

// LogEarlyStop logs a KL early stop.
func (s *StandardLogger) LogEarlyStop(epoch int, kl float64) {
	if s.EarlyStop {
		log.Printf("epoch %d: max kl reached (kl=%f), stopping", epoch, kl)
	}
}

// LogTimes logs the timing of an iteration.
func (s *StandardLogger) LogTimes(sample, optimize, eval, elapsed time.Duration) {
	if s.Times {
		log.Printf("times: sample=%v optimize=%v eval=%v elapsed=%v",
			sample.Round(time.Millisecond), optimize.Round(time.Millisecond),
			eval.Round(time.Millisecond), elapsed.Round(time.Second))
	}
}

// LogEval logs evaluation metrics as a boxed table.
func (s *StandardLogger) LogEval(iter int, metrics []telemetry.Row) {
	if s.Eval {
		log.Printf("evaluation after iter %d:\n%s", iter, telemetry.FormatTable(metrics))
	}
}

// LogCheckpoint logs a saved checkpoint.
func (s *StandardLogger) LogCheckpoint(path string, reward float64) {
	if s.Checkpoint {
		log.Printf("saved best policy (reward=%f) to %s", reward, path)
	}
}
