package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	vocab_builder "github.com/wbrown/vocab_builder"
	"github.com/wbrown/vocab_builder/datasets"
	"github.com/wbrown/vocab_builder/storage"
)

// processIndex resolves this process's rank among the cooperating processes
// in the job. A non-negative flag value wins; otherwise the scheduler's
// environment is consulted. Rank 0 is the leader.
func processIndex(flagValue int) int {
	if flagValue >= 0 {
		return flagValue
	}
	for _, envVar := range []string{"RANK", "JOB_COMPLETION_INDEX"} {
		if value, ok := os.LookupEnv(envVar); ok {
			if index, err := strconv.Atoi(value); err != nil {
				log.Fatalf("Invalid %s value '%s'", envVar, value)
			} else {
				return index
			}
		}
	}
	return 0
}

// openRecords builds the dataset stream for the given input, local directory
// or s3:// prefix.
func openRecords(input string, shuffle bool) (datasets.RecordIterator,
	error) {
	if storage.IsS3URI(input) {
		sess, err := session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, err
		}
		bucket, prefix := storage.ParseS3URI(input)
		return datasets.ReadS3JSONLRecords(s3.New(sess), bucket, prefix)
	}
	return datasets.ReadJSONLRecords(input, shuffle)
}

func main() {
	inputDir := flag.String("input", "",
		"dataset source, local directory or s3:// prefix of .jsonl files")
	vocabSize := flag.Int("vocab_size", 32768, "vocab size")
	maxCorpusBytes := flag.Int("max_corpus_bytes", 10_000_000,
		"approximate number of corpus bytes to sample for training")
	assetsPath := flag.String("assets_path", "assets",
		"local staging directory for the trained artifact")
	vocabModelName := flag.String("vocab_model_name", "tokenizer.model",
		"artifact file name within assets_path")
	vocabPath := flag.String("vocab_path", "",
		"artifact destination, local or s3://; overrides assets_path/"+
			"vocab_model_name")
	modelType := flag.String("model_type", "unigram",
		"vocab model type [unigram, bpe, word, char]")
	characterCoverage := flag.Float64("character_coverage", 1.0,
		"amount of characters covered by the model; 0.9995 is a good "+
			"default for rich character sets, 1.0 otherwise")
	dataKeys := flag.String("data_keys", "text",
		"comma-separated record fields to sample, in order")
	sanitizeBool := flag.Bool("sanitize", false,
		"sanitize sampled text of whitespace issues")
	splitSentences := flag.Bool("split_sentences", false,
		"split sampled text into one sentence per line")
	shuffleBool := flag.Bool("shuffle", false,
		"shuffle dataset file order before sampling")
	spmBinary := flag.String("spm_train", "spm_train",
		"path to the sentencepiece trainer binary")
	pollInterval := flag.Duration("poll_interval", time.Second,
		"how often non-leader processes re-check the artifact destination")
	processIndexFlag := flag.Int("process_index", -1,
		"rank of this process in the job; -1 reads RANK or "+
			"JOB_COMPLETION_INDEX from the environment")
	flag.Parse()
	if *inputDir == "" {
		flag.Usage()
		log.Fatal("Must provide -input for dataset source")
	}

	finalPath := *vocabPath
	if finalPath == "" {
		finalPath = filepath.Join(*assetsPath, *vocabModelName)
	}

	index := processIndex(*processIndexFlag)
	role := vocab_builder.RoleForProcess(index)
	log.Printf("Vocab artifact destination: %s", finalPath)
	log.Printf("Process index: %d (%s)", index, role)

	backend, err := storage.ForPath(finalPath)
	if err != nil {
		log.Fatal(err)
	}

	sampler := vocab_builder.NewCorpusSampler()
	sampler.DataKeys = strings.Split(*dataKeys, ",")
	sampler.MaxBytes = *maxCorpusBytes
	sampler.Sanitize = *sanitizeBool
	sampler.SplitSentences = *splitSentences

	params := vocab_builder.NewTrainingParams()
	params.VocabSize = *vocabSize
	params.CharacterCoverage = *characterCoverage
	params.ModelType = *modelType
	if err := params.Validate(); err != nil {
		log.Fatal(err)
	}

	// Followers never touch the dataset; only the leader pays for opening
	// the stream.
	var next datasets.RecordIterator
	if role == vocab_builder.RoleLeader {
		if next, err = openRecords(*inputDir, *shuffleBool); err != nil {
			log.Fatal(err)
		}
	}

	trainer := vocab_builder.NewSPMTrainer()
	trainer.BinaryPath = *spmBinary

	publisher := vocab_builder.NewPublisher(backend, trainer)
	publisher.PollInterval = *pollInterval

	begin := time.Now()
	artifactPath, runErr := publisher.Run(context.Background(), role, next,
		vocab_builder.PublishConfig{
			VocabPath: finalPath,
			AssetsDir: *assetsPath,
			Sampler:   sampler,
			Params:    params,
		})
	if runErr != nil {
		log.Fatal(runErr)
	}
	log.Printf("Vocab artifact ready at %s after %0.2fs", artifactPath,
		time.Now().Sub(begin).Seconds())
}
