package vocab_builder

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
	lru "github.com/hashicorp/golang-lru"
	"github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

const MODEL_CACHE_SZ = 16

var modelCache *lru.ARCCache

func init() {
	modelCache, _ = lru.NewARC(MODEL_CACHE_SZ)
}

// ModelInfo summarizes a trained SentencePiece model for verification and
// logging.
type ModelInfo struct {
	Pieces    int
	ModelType string
	VocabSize int
}

// readModelBytes maps the model file into memory rather than copying it;
// models can run to hundreds of megabytes at large vocab sizes.
func readModelBytes(path string) ([]byte, func(), error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	fileMmap, mmapErr := mmap.Map(file, mmap.RDONLY, 0)
	if mmapErr != nil {
		file.Close()
		return nil, nil, errors.New(fmt.Sprintf(
			"error trying to mmap file: %s", mmapErr))
	}
	cleanup := func() {
		fileMmap.Unmap()
		file.Close()
	}
	return fileMmap, cleanup, nil
}

// InspectModel
// Parses a trained model file and returns its piece count, model type, and
// configured vocab size. Parsed results are cached process-wide by path, so
// repeated inspections of the same artifact are cheap.
func InspectModel(path string) (*ModelInfo, error) {
	if cached, ok := modelCache.Get(path); ok {
		return cached.(*ModelInfo), nil
	}
	modelBytes, cleanup, err := readModelBytes(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var model sentencepiece.ModelProto
	if unmarshalErr := proto.Unmarshal(modelBytes, &model); unmarshalErr != nil {
		return nil, errors.New(fmt.Sprintf(
			"unable to parse model '%s': %v", path, unmarshalErr))
	}
	if len(model.GetPieces()) == 0 {
		return nil, errors.New(fmt.Sprintf(
			"model '%s' contains no pieces", path))
	}
	info := &ModelInfo{
		Pieces: len(model.GetPieces()),
		ModelType: strings.ToLower(
			model.GetTrainerSpec().GetModelType().String()),
		VocabSize: int(model.GetTrainerSpec().GetVocabSize()),
	}
	modelCache.Add(path, info)
	return info, nil
}
