package vocab_builder

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/wbrown/vocab_builder/datasets"
	"github.com/wbrown/vocab_builder/storage"
)

// Role determines which branch of the publish protocol a process runs.
// Exactly one process in a job is the leader; the assignment is static, so a
// leader that dies before publishing leaves the followers waiting until the
// job is killed externally.
type Role int

const (
	RoleLeader Role = iota
	RoleFollower
)

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "follower"
}

// RoleForProcess
// Computes the process role from its rank in the job. Rank 0 is always the
// leader.
func RoleForProcess(processIndex int) Role {
	if processIndex == 0 {
		return RoleLeader
	}
	return RoleFollower
}

// TrainingError wraps a failure of the external training routine.
type TrainingError struct {
	Err error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("vocabulary training failed: %v", e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// PublishError wraps a failure to stage or rename the trained artifact into
// place. Followers polling the destination are left waiting when this
// happens; an operator must intervene.
type PublishError struct {
	Op   string
	Path string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// PublishConfig carries the per-job publication settings.
type PublishConfig struct {
	// VocabPath is the process-wide-agreed destination of the trained
	// artifact, local or s3://.
	VocabPath string
	// AssetsDir is the local staging directory, used only for local
	// destinations.
	AssetsDir string
	Sampler   CorpusSampler
	Params    TrainingParams
}

// Publisher coordinates many cooperating processes so that exactly one
// trains and writes the vocabulary artifact while the rest wait for it to
// appear, using only filesystem visibility at the destination path. Readers
// never observe a partially written artifact: the leader stages the model at
// a temporary path and atomically renames it into place.
type Publisher struct {
	Backend storage.Backend
	Trainer Trainer
	// PollInterval is how often followers re-check the destination.
	PollInterval time.Duration
	// SettleDelay is the extra wait after first observing the artifact,
	// guarding against read-after-write lag in eventually consistent
	// stores. Defaults to PollInterval.
	SettleDelay time.Duration

	pause func(ctx context.Context, d time.Duration) error
}

// NewPublisher
// Creates a Publisher with the reference 1-second poll interval.
func NewPublisher(backend storage.Backend, trainer Trainer) *Publisher {
	return &Publisher{
		Backend:      backend,
		Trainer:      trainer,
		PollInterval: time.Second,
	}
}

func (p *Publisher) sleep(ctx context.Context, d time.Duration) error {
	if p.pause != nil {
		return p.pause(ctx, d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (p *Publisher) settleDelay() time.Duration {
	if p.SettleDelay > 0 {
		return p.SettleDelay
	}
	return p.PollInterval
}

// Run
// Executes the publish protocol for this process. The leader samples the
// dataset, trains a vocabulary, and atomically publishes it at
// cfg.VocabPath; followers block until the artifact is visible there. Both
// paths return the artifact path once it is ready for consumption.
func (p *Publisher) Run(ctx context.Context, role Role,
	next datasets.RecordIterator, cfg PublishConfig) (string, error) {
	log.Printf("Process role: %s, artifact destination: %s",
		role, cfg.VocabPath)
	if role == RoleLeader {
		return cfg.VocabPath, p.trainAndPublish(ctx, next, cfg)
	}
	return cfg.VocabPath, p.waitForArtifact(ctx, cfg.VocabPath)
}

// trainAndPublish runs the leader sequence: Sampling, Training,
// StagingWrite, AtomicPublish. Every failure is fatal and propagates; no
// step is retried.
func (p *Publisher) trainAndPublish(ctx context.Context,
	next datasets.RecordIterator, cfg PublishConfig) error {
	sample, err := cfg.Sampler.Sample(next)
	if err != nil {
		return err
	}

	if cfg.AssetsDir != "" {
		if mkErr := os.MkdirAll(cfg.AssetsDir, 0755); mkErr != nil {
			return mkErr
		}
	}
	prefixFile, err := os.CreateTemp(cfg.AssetsDir, "sp_tmp_*")
	if err != nil {
		return err
	}
	modelPrefix := prefixFile.Name()
	prefixFile.Close()

	if trainErr := p.Trainer.Train(ctx, sample.Path, modelPrefix,
		cfg.Params); trainErr != nil {
		return &TrainingError{Err: trainErr}
	}
	staged := modelPrefix + ModelSuffix

	// Verify the staged model before it can become visible; a model that
	// fails to parse must never be published for followers to adopt.
	info, inspectErr := InspectModel(staged)
	if inspectErr != nil {
		return &TrainingError{Err: fmt.Errorf(
			"trained model failed verification: %w", inspectErr)}
	}

	if publishErr := p.publish(staged, cfg); publishErr != nil {
		return publishErr
	}
	log.Printf("Published %s to %s (%d pieces, %s model)",
		staged, cfg.VocabPath, info.Pieces, info.ModelType)
	return nil
}

var stagingRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// stagingPath derives the intermediate name for one publish attempt. The
// pid and nonce keep attempts from distinct runs or retries from colliding
// on the same intermediate path.
func stagingPath(finalPath string) string {
	return fmt.Sprintf("%s.%d.%08x.rntmp", finalPath, os.Getpid(),
		stagingRand.Uint32())
}

// publish moves the staged model to its destination through an intermediate
// path, so the only transition readers can observe at the destination is
// absent-to-complete.
func (p *Publisher) publish(staged string, cfg PublishConfig) error {
	finalPath := cfg.VocabPath
	tempPath := stagingPath(finalPath)
	if !p.Backend.Remote() {
		if err := p.Backend.MakeDirs(filepath.Dir(finalPath)); err != nil {
			return &PublishError{Op: "mkdirs", Path: finalPath, Err: err}
		}
	}
	if err := p.Backend.Copy(staged, tempPath, true); err != nil {
		return &PublishError{Op: "copy", Path: tempPath, Err: err}
	}
	if err := p.Backend.Rename(tempPath, finalPath, true); err != nil {
		return &PublishError{Op: "rename", Path: finalPath, Err: err}
	}
	return nil
}

// waitForArtifact polls the destination until a complete artifact is
// visible, then waits one settle delay before returning so that the rename's
// write-back has propagated through any caching layer. There is no deadline:
// training takes as long as it takes, and only job termination or ctx
// cancellation ends the wait. Transient errors from the existence probe are
// logged and treated as absence.
func (p *Publisher) waitForArtifact(ctx context.Context,
	finalPath string) error {
	for {
		exists, err := p.Backend.Exists(finalPath)
		if err != nil {
			log.Printf("Error probing %s, will retry: %v", finalPath, err)
		} else if exists {
			break
		}
		if sleepErr := p.sleep(ctx, p.PollInterval); sleepErr != nil {
			return sleepErr
		}
	}
	if sleepErr := p.sleep(ctx, p.settleDelay()); sleepErr != nil {
		return sleepErr
	}
	log.Printf("Artifact %s is ready", finalPath)
	return nil
}
