package datasets

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Reader is the subset of the S3 API needed to stream dataset records,
// narrow enough for tests to provide a mock.
type S3Reader interface {
	ListObjectsV2(input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	GetObject(input *s3.GetObjectInput) (*s3.GetObjectOutput, error)
}

// ListJSONLObjects
// Lists all `.jsonl` object keys under the given bucket and prefix, following
// continuation tokens until the listing is complete.
func ListJSONLObjects(client S3Reader, bucket string,
	prefix string) ([]string, error) {
	keys := make([]string, 0)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	for {
		output, err := client.ListObjectsV2(input)
		if err != nil {
			return nil, err
		}
		for _, object := range output.Contents {
			key := aws.StringValue(object.Key)
			if strings.HasSuffix(key, ".jsonl") {
				keys = append(keys, key)
			}
		}
		if !aws.BoolValue(output.IsTruncated) {
			break
		}
		input.ContinuationToken = output.NextContinuationToken
	}
	if len(keys) == 0 {
		return nil, errors.New(fmt.Sprintf(
			"s3://%s/%s does not contain any .jsonl objects", bucket, prefix))
	}
	return keys, nil
}

// ReadS3JSONLRecords
// Produces a RecordIterator over all `.jsonl` objects under an S3 bucket and
// prefix. Objects are fetched sequentially by a background goroutine and
// their lines decoded into Records, mirroring the local directory reader.
func ReadS3JSONLRecords(client S3Reader, bucket string,
	prefix string) (RecordIterator, error) {
	keys, err := ListJSONLObjects(client, bucket, prefix)
	if err != nil {
		return nil, err
	}

	records := make(chan Record, 64)
	go func() {
		for _, key := range keys {
			output, getErr := client.GetObject(&s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			})
			if getErr != nil {
				log.Fatalf("Error fetching s3://%s/%s: %v",
					bucket, key, getErr)
			}
			log.Printf("Reading s3://%s/%s", bucket, key)
			recordsFromReader(output.Body, key, records)
			output.Body.Close()
		}
		close(records)
	}()

	return func() Record {
		if record, ok := <-records; !ok {
			return nil
		} else {
			return record
		}
	}, nil
}
