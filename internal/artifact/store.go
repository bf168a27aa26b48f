package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/dpr-analyzer/constants"
	"github.com/joseph-ayodele/dpr-analyzer/internal/common"
)

// Document is one stored upload, exclusively owned by its job for the job's
// lifetime.
type Document struct {
	JobID            uuid.UUID
	StoragePath      string
	OutputDir        string
	OriginalFilename string
	SizeBytes        int64
	MIMEType         string
}

// Store owns the on-disk lifecycle of per-job resources: the uploaded
// document and the extraction output directory. Acquire and Release are the
// only two doors; no uploaded content may outlive its job.
type Store struct {
	root     string
	maxBytes int64
	ledger   *Ledger
	logger   *slog.Logger
}

func NewStore(root string, maxBytes int64, ledger *Ledger, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	if err := os.MkdirAll(filepath.Join(root, "jobs"), 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: root, maxBytes: maxBytes, ledger: ledger, logger: logger}, nil
}

// MaxBytes returns the configured upload ceiling.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Acquire streams an upload into a job-scoped location. declaredLen < 0
// means unknown length; a known length over the ceiling is rejected before a
// single byte is written, an unknown one is aborted mid-write. The stored
// name carries a unique suffix so concurrent jobs with identically named
// uploads never collide.
func (s *Store) Acquire(ctx context.Context, jobID uuid.UUID, upload io.Reader, declaredLen int64, declaredMIME, originalFilename string) (Document, error) {
	if declaredMIME != constants.MIMEPDF {
		return Document{}, fmt.Errorf("%w: %q", common.ErrUnsupportedMedia, declaredMIME)
	}
	ext := constants.NormalizeExt(filepath.Ext(originalFilename))
	if !constants.AllowedExt(ext) {
		return Document{}, fmt.Errorf("%w: extension %q", common.ErrUnsupportedMedia, ext)
	}
	if declaredLen == 0 {
		return Document{}, fmt.Errorf("%w: empty upload", common.ErrInvalidInput)
	}
	if declaredLen > s.maxBytes {
		return Document{}, fmt.Errorf("%w: declared size %d exceeds ceiling %d",
			common.ErrInvalidInput, declaredLen, s.maxBytes)
	}

	dir := s.jobDir(jobID)
	uploadDir := filepath.Join(dir, "upload")
	outputDir := filepath.Join(dir, "output")
	for _, d := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return Document{}, common.NewAppError("STORE_MKDIR", "create job directories", err)
		}
	}

	stored := storedName(originalFilename, jobID)
	path := filepath.Join(uploadDir, stored)

	n, err := s.writeCapped(path, upload)
	if err != nil {
		s.removeJobDir(jobID)
		return Document{}, err
	}
	if n == 0 {
		s.removeJobDir(jobID)
		return Document{}, fmt.Errorf("%w: empty upload", common.ErrInvalidInput)
	}

	if s.ledger != nil {
		if err := s.ledger.Record(ctx, jobID.String(), dir); err != nil {
			s.removeJobDir(jobID)
			return Document{}, common.NewAppError("STORE_LEDGER", "record job directory", err)
		}
	}

	s.logger.Debug("store.acquired",
		"job_id", jobID,
		"stored", stored,
		"size_bytes", n,
	)
	return Document{
		JobID:            jobID,
		StoragePath:      path,
		OutputDir:        outputDir,
		OriginalFilename: filepath.Base(originalFilename),
		SizeBytes:        n,
		MIMEType:         declaredMIME,
	}, nil
}

// Release removes everything the job owns on disk. Safe to call more than
// once and on jobs that never finished acquiring.
func (s *Store) Release(ctx context.Context, jobID uuid.UUID) error {
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		return common.NewAppError("STORE_RELEASE", "remove job directory", err)
	}
	if s.ledger != nil {
		if err := s.ledger.Forget(ctx, jobID.String()); err != nil {
			return err
		}
	}
	s.logger.Debug("store.released", "job_id", jobID)
	return nil
}

// writeCapped copies the stream, aborting one byte past the ceiling so
// oversized uploads of unknown length fail without filling the disk.
func (s *Store) writeCapped(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, common.NewAppError("STORE_WRITE", "create stored document", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		return n, common.NewAppError("STORE_WRITE", "write stored document", err)
	case closeErr != nil:
		return n, common.NewAppError("STORE_WRITE", "close stored document", closeErr)
	case n > s.maxBytes:
		return n, fmt.Errorf("%w: upload exceeds ceiling %d", common.ErrInvalidInput, s.maxBytes)
	}
	return n, nil
}

func (s *Store) jobDir(jobID uuid.UUID) string {
	return filepath.Join(s.root, "jobs", jobID.String())
}

func (s *Store) removeJobDir(jobID uuid.UUID) {
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		s.logger.Warn("store.cleanup_failed", "job_id", jobID, "error", err)
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// storedName sanitizes the user-supplied name and appends a short unique
// suffix before the extension: "report.pdf" -> "report-1a2b3c4d.pdf".
func storedName(originalFilename string, jobID uuid.UUID) string {
	base := filepath.Base(originalFilename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	stem = unsafeNameChars.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "._")
	if stem == "" {
		stem = "document"
	}

	suffix := strings.Split(jobID.String(), "-")[0]
	return fmt.Sprintf("%s-%s%s", stem, suffix, strings.ToLower(ext))
}
