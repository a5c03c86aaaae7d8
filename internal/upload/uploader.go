package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"kbassist/internal/api"
)

const DefaultTimeout = 120 * time.Second

// DocumentAPI is the slice of the API client the uploader needs.
type DocumentAPI interface {
	UploadDocument(ctx context.Context, req api.UploadRequest, onProgress func(api.UploadProgress)) (*api.Document, error)
}

// File is one entry of a batch. Open is called right before the file is sent.
type File struct {
	Name  string
	Title string
	Open  func() (io.ReadCloser, error)
}

// FromPath builds a File backed by a path on disk.
func FromPath(path string) File {
	return File{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Progress is reported while a batch runs.
type Progress struct {
	FileIndex   int
	FileCount   int
	FileName    string
	FilePercent int
	Overall     int
}

// Result describes a finished or stopped batch. Documents holds the files that
// made it before any failure.
type Result struct {
	Documents []api.Document
	Failed    string
	Error     string
}

func (r *Result) OK() bool { return r.Error == "" }

type Uploader struct {
	client  DocumentAPI
	timeout time.Duration
	logger  *zap.Logger
}

func NewUploader(client DocumentAPI, timeout time.Duration, logger *zap.Logger) *Uploader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{client: client, timeout: timeout, logger: logger}
}

// Upload sends files one after another into kbID. The first failure stops the
// batch; files already uploaded stay uploaded.
func (u *Uploader) Upload(ctx context.Context, kbID api.ID, files []File, onProgress func(Progress)) *Result {
	res := &Result{}
	if kbID.IsZero() {
		res.Error = "select a knowledge base first"
		return res
	}
	if len(files) == 0 {
		res.Error = "no files to upload"
		return res
	}

	total := len(files)
	tracker := &progressTracker{total: total, notify: onProgress}

	for i, f := range files {
		tracker.report(i, f.Name, 0)
		doc, err := u.uploadOne(ctx, kbID, f, func(p api.UploadProgress) {
			tracker.report(i, f.Name, p.Percent)
		})
		if err != nil {
			u.logger.Warn("upload stopped", zap.String("file", f.Name), zap.Int("index", i), zap.Error(err))
			res.Failed = f.Name
			res.Error = fmt.Sprintf("upload %s failed: %v", f.Name, err)
			return res
		}
		res.Documents = append(res.Documents, *doc)
		u.logger.Info("file uploaded", zap.String("file", f.Name), zap.String("kb_id", kbID.String()))
		tracker.fileDone(i, f.Name)
	}
	return res
}

func (u *Uploader) uploadOne(ctx context.Context, kbID api.ID, f File, onProgress func(api.UploadProgress)) (*api.Document, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("file %s has no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer rc.Close()

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	return u.client.UploadDocument(ctx, api.UploadRequest{
		KBID:     kbID,
		FileName: f.Name,
		Title:    f.Title,
		Reader:   rc,
	}, onProgress)
}

// progressTracker turns per-file percentages into a monotonic overall value that
// only reaches 100 once the last file is done.
type progressTracker struct {
	total   int
	overall int
	notify  func(Progress)
}

func (t *progressTracker) report(index int, name string, filePercent int) {
	filePercent = clamp(filePercent, 0, 100)
	overall := (index*100 + filePercent) / t.total
	if overall > 99 {
		overall = 99
	}
	t.emit(index, name, filePercent, overall)
}

func (t *progressTracker) fileDone(index int, name string) {
	overall := (index + 1) * 100 / t.total
	if index+1 < t.total && overall > 99 {
		overall = 99
	}
	t.emit(index, name, 100, overall)
}

func (t *progressTracker) emit(index int, name string, filePercent, overall int) {
	if overall < t.overall {
		overall = t.overall
	}
	t.overall = overall
	if t.notify != nil {
		t.notify(Progress{
			FileIndex:   index,
			FileCount:   t.total,
			FileName:    name,
			FilePercent: filePercent,
			Overall:     overall,
		})
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
