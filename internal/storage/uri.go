package storage

import (
	"fmt"
	"regexp"
	"strings"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ObjectURI addresses one object as s3://bucket/key.
type ObjectURI struct {
	Bucket string
	Key    string
}

func (u ObjectURI) String() string {
	return "s3://" + u.Bucket + "/" + u.Key
}

// IsObjectURI reports whether raw uses the s3:// scheme.
func IsObjectURI(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "s3://")
}

func ParseObjectURI(raw string) (ObjectURI, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "s3://") {
		return ObjectURI{}, fmt.Errorf("object uri %q must start with s3://", raw)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(trimmed, "s3://"), "/")
	if !ok || strings.TrimSpace(key) == "" {
		return ObjectURI{}, fmt.Errorf("object uri %q has no key", raw)
	}
	if !bucketNamePattern.MatchString(bucket) {
		return ObjectURI{}, fmt.Errorf("invalid bucket name: %q", bucket)
	}
	return ObjectURI{Bucket: bucket, Key: key}, nil
}
