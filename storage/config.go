package storage

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	datastore "github.com/ipfs/go-datastore"
	s3ds "github.com/ipfs/go-ds-s3"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var log = logging.Logger("storage")

// Config describes where a datastore lives. An empty Kind means memory.
type Config struct {
	Kind string
	Path string // for badger

	// remaining are for s3
	RegionEndpoint string
	Bucket         string
	Region         string
	AccessKey      string
	SecretKey      string
	LocalS3        bool
	RootDirectory  string
}

// ToDatastore opens the datastore described by the config. The name is joined
// to the badger path since badger holds a directory lock.
func (c *Config) ToDatastore(name string) (datastore.Batching, error) {
	switch strings.ToLower(c.Kind) {
	case "", "memory":
		return NewDefaultMemory(), nil
	case "badger":
		if c.Path == "" {
			return nil, errors.New("badger storage requires a path")
		}
		return NewDefaultBadger(filepath.Join(c.Path, name))
	case "s3":
		return NewS3(c)
	default:
		return nil, errors.Errorf("error, unknown storage kind: %s", c.Kind)
	}
}

func NewS3(c *Config) (datastore.Batching, error) {
	s3conf := s3ds.Config{
		RegionEndpoint: c.RegionEndpoint,
		Bucket:         c.Bucket,
		Region:         c.Region,
		AccessKey:      c.AccessKey,
		SecretKey:      c.SecretKey,
		RootDirectory:  c.RootDirectory,
	}

	ds, err := s3ds.NewS3Datastore(s3conf)
	if err != nil {
		return nil, errors.Wrap(err, "error creating datastore")
	}
	if c.LocalS3 {
		log.Debugw("creating bucket", "bucket", c.Bucket)
		if err := devMakeBucket(ds.S3, c.Bucket); err != nil {
			return nil, errors.Wrap(err, "error creating bucket")
		}
	}
	return ds, nil
}

func devMakeBucket(s3obj *s3.S3, bucketName string) error {
	_, err := s3obj.CreateBucket(&s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	// since this is local, we need to wait a sec before using it
	time.Sleep(1 * time.Second)

	return err
}
