package eventarchive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
)

const defaultPrefix = "stripe-events"

// ValidateConfig checks the settings needed to upload to S3.
func ValidateConfig(cfg config.ArchiveConfig) error {
	if !cfg.Enabled {
		return errors.New("event archive is disabled (archive.enabled=false)")
	}
	var errs []error
	if cfg.AccessKeyID == "" {
		errs = append(errs, errors.New("archive.access_key_id is required"))
	}
	if cfg.SecretAccessKey == "" {
		errs = append(errs, errors.New("archive.secret_access_key is required"))
	}
	if cfg.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket is required"))
	}
	return errors.Join(errs...)
}

// ObjectKey returns the key of an archive object:
// {prefix}/YYYY/MM/DD/{unix}.jsonl, dated by the cutoff.
func ObjectKey(prefix string, before, runAt time.Time) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	before = before.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%d.jsonl", prefix, before.Year(), before.Month(), before.Day(), runAt.Unix())
}
