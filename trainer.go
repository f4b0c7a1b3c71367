package vocab_builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"time"
)

// ModelSuffix is appended by the SentencePiece trainer to the model prefix
// it is given.
const ModelSuffix = ".model"

var validModelTypes = map[string]bool{
	"unigram": true,
	"bpe":     true,
	"word":    true,
	"char":    true,
}

// TrainingParams carries the vocabulary training configuration handed to the
// external trainer.
type TrainingParams struct {
	VocabSize         int
	CharacterCoverage float64
	ModelType         string
}

// NewTrainingParams
// Creates TrainingParams with the default configuration: a 32768-entry
// unigram vocabulary with full character coverage.
func NewTrainingParams() TrainingParams {
	return TrainingParams{
		VocabSize:         32768,
		CharacterCoverage: 1.0,
		ModelType:         "unigram",
	}
}

func (tp TrainingParams) Validate() error {
	if tp.VocabSize <= 0 {
		return errors.New(fmt.Sprintf(
			"vocab size must be positive, got %d", tp.VocabSize))
	}
	if tp.CharacterCoverage <= 0 || tp.CharacterCoverage > 1 {
		return errors.New(fmt.Sprintf(
			"character coverage must be in (0, 1], got %f",
			tp.CharacterCoverage))
	}
	if !validModelTypes[tp.ModelType] {
		return errors.New(fmt.Sprintf(
			"invalid model type '%s'", tp.ModelType))
	}
	return nil
}

// Trainer consumes a text file and synchronously produces a model file at
// modelPrefix + ModelSuffix. Training duration is unbounded; failures are
// fatal to the job and must not be blindly retried.
type Trainer interface {
	Train(ctx context.Context, inputPath string, modelPrefix string,
		params TrainingParams) error
}

// SPMTrainer invokes the SentencePiece `spm_train` binary.
type SPMTrainer struct {
	BinaryPath string
}

func NewSPMTrainer() SPMTrainer {
	return SPMTrainer{BinaryPath: "spm_train"}
}

// trainArgs builds the spm_train argument vector.
func trainArgs(inputPath string, modelPrefix string,
	params TrainingParams) []string {
	return []string{
		fmt.Sprintf("--input=%s", inputPath),
		fmt.Sprintf("--vocab_size=%d", params.VocabSize),
		fmt.Sprintf("--character_coverage=%g", params.CharacterCoverage),
		fmt.Sprintf("--model_prefix=%s", modelPrefix),
		fmt.Sprintf("--model_type=%s", params.ModelType),
	}
}

func (st SPMTrainer) Train(ctx context.Context, inputPath string,
	modelPrefix string, params TrainingParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	args := trainArgs(inputPath, modelPrefix, params)
	log.Printf("Training vocabulary: %s %v", st.BinaryPath, args)
	begin := time.Now()
	cmd := exec.CommandContext(ctx, st.BinaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.New(fmt.Sprintf("%s failed: %v: %s",
			st.BinaryPath, err, lastLine(stderr.Bytes())))
	}
	log.Printf("Trained %s%s in %0.2fs", modelPrefix, ModelSuffix,
		time.Now().Sub(begin).Seconds())
	return nil
}

// lastLine returns the final non-empty line of trainer output, which is
// where spm_train reports its error.
func lastLine(output []byte) string {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(lines[len(lines)-1])
}
