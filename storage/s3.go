package storage

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/dustin/go-humanize"
)

// S3Client is the subset of the S3 API the backend needs, narrow enough for
// tests to provide a mock.
type S3Client interface {
	HeadObject(input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	CopyObject(input *s3.CopyObjectInput) (*s3.CopyObjectOutput, error)
	DeleteObject(input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
}

// S3Backend implements Backend over an S3-compatible object store. Object
// PUTs are atomic at the key level, so readers of a key observe either the
// previous object or the complete new one; this stands in for POSIX rename
// semantics.
type S3Backend struct {
	Client S3Client
}

func NewS3Backend(client S3Client) S3Backend {
	return S3Backend{Client: client}
}

// NewS3BackendFromEnv
// Builds an S3 backend using the default AWS credential and region chain.
func NewS3BackendFromEnv() (S3Backend, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return S3Backend{}, err
	}
	return NewS3Backend(s3.New(sess)), nil
}

func (sb S3Backend) Exists(path string) (bool, error) {
	bucket, key := ParseS3URI(path)
	_, err := sb.Client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if awsErr, ok := err.(awserr.Error); ok {
		switch awsErr.Code() {
		case "NotFound", s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
			return false, nil
		}
	}
	return false, err
}

// MakeDirs is a no-op: object stores have no directories to create.
func (S3Backend) MakeDirs(path string) error {
	return nil
}

// Copy uploads a local file to an S3 destination. The upload is atomic at
// the destination key regardless of size.
func (sb S3Backend) Copy(src string, dst string, overwrite bool) error {
	if !overwrite {
		if exists, err := sb.Exists(dst); err != nil {
			return err
		} else if exists {
			return errors.New(fmt.Sprintf(
				"%s already exists and overwrite is disabled", dst))
		}
	}
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()
	stat, err := srcFile.Stat()
	if err != nil {
		return err
	}
	bucket, key := ParseS3URI(dst)
	log.Printf("Uploading %s (%s) to %s...", src,
		humanize.Bytes(uint64(stat.Size())), dst)
	_, err = sb.Client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   srcFile,
	})
	return err
}

// Rename moves an object between keys via a server-side copy followed by a
// delete. The copy makes the destination visible as a complete object in a
// single step; the delete of the source is not part of the visibility
// contract.
func (sb S3Backend) Rename(src string, dst string, overwrite bool) error {
	if !overwrite {
		if exists, err := sb.Exists(dst); err != nil {
			return err
		} else if exists {
			return errors.New(fmt.Sprintf(
				"%s already exists and overwrite is disabled", dst))
		}
	}
	srcBucket, srcKey := ParseS3URI(src)
	dstBucket, dstKey := ParseS3URI(dst)
	_, err := sb.Client.CopyObject(&s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(srcBucket + "/" + srcKey),
	})
	if err != nil {
		return err
	}
	_, err = sb.Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(srcBucket),
		Key:    aws.String(srcKey),
	})
	return err
}

func (S3Backend) Remote() bool {
	return true
}
