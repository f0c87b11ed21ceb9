package models

import (
	"fmt"
	"sort"
	"time"
)

// GeneratedPaths maps size name -> format name -> derived key.
// A nil key marks a (size, format) pair that failed.
type GeneratedPaths map[string]map[string]*string

// NewGeneratedPaths returns a mapping with one entry per size, each holding
// one null entry per format.
func NewGeneratedPaths(sizes []Size, formats []Format) GeneratedPaths {
	gp := make(GeneratedPaths, len(sizes))
	for _, s := range sizes {
		inner := make(map[string]*string, len(formats))
		for _, f := range formats {
			inner[f.Name] = nil
		}
		gp[s.Name] = inner
	}
	return gp
}

func (gp GeneratedPaths) Set(size, format, key string) {
	inner, ok := gp[size]
	if !ok {
		inner = make(map[string]*string)
		gp[size] = inner
	}
	k := key
	inner[format] = &k
}

// Get returns the key stored for the pair and whether it is non-null.
func (gp GeneratedPaths) Get(size, format string) (string, bool) {
	inner, ok := gp[size]
	if !ok {
		return "", false
	}
	k, ok := inner[format]
	if !ok || k == nil {
		return "", false
	}
	return *k, true
}

// Keys returns every non-null derived key, sorted.
func (gp GeneratedPaths) Keys() []string {
	var keys []string
	for _, inner := range gp {
		for _, k := range inner {
			if k != nil && *k != "" {
				keys = append(keys, *k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Failed counts the null entries.
func (gp GeneratedPaths) Failed() int {
	n := 0
	for _, inner := range gp {
		for _, k := range inner {
			if k == nil {
				n++
			}
		}
	}
	return n
}

// ImageRecord is a row of the images metadata table.
type ImageRecord struct {
	ID             int64          `db:"id" json:"id"`
	Path           string         `db:"path" json:"path"`
	Title          string         `db:"title" json:"title"`
	Category       string         `db:"category" json:"category,omitempty"`
	Bucket         string         `db:"bucket" json:"bucket"`
	GeneratedPaths GeneratedPaths `db:"generated_paths" json:"generatedPaths"`
	UploadedBy     string         `db:"uploaded_by" json:"uploadedBy,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

type GenerateRequest struct {
	Bucket string `json:"bucket"`
	File   string `json:"file"`
	// Path is the legacy name of File.
	Path string `json:"path,omitempty"`
}

// Target returns the file reference, preferring File over the legacy Path.
func (r GenerateRequest) Target() string {
	if r.File != "" {
		return r.File
	}
	return r.Path
}

func (r GenerateRequest) Validate() error {
	if r.Bucket == "" || r.Target() == "" {
		return fmt.Errorf("%w: missing bucket or file", ErrInvalidRequest)
	}
	return nil
}

type GenerateResponse struct {
	OK             bool           `json:"ok"`
	GeneratedPaths GeneratedPaths `json:"generatedPaths"`
}

// DeleteJobRequest accepts its fields either at the top level or nested
// under "job".
type DeleteJobRequest struct {
	ID           int64             `json:"id,omitempty"`
	Path         string            `json:"path"`
	DerivedPaths GeneratedPaths    `json:"derived_paths,omitempty"`
	Job          *DeleteJobRequest `json:"job,omitempty"`
}

// Flatten lifts the nested job fields to the top level. Top-level values win.
func (r DeleteJobRequest) Flatten() DeleteJobRequest {
	out := DeleteJobRequest{ID: r.ID, Path: r.Path, DerivedPaths: r.DerivedPaths}
	if r.Job != nil {
		inner := r.Job.Flatten()
		if out.ID == 0 {
			out.ID = inner.ID
		}
		if out.Path == "" {
			out.Path = inner.Path
		}
		if out.DerivedPaths == nil {
			out.DerivedPaths = inner.DerivedPaths
		}
	}
	return out
}

func (r DeleteJobRequest) Validate() error {
	if r.Flatten().Path == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidRequest)
	}
	return nil
}

type UploadURLRequest struct {
	FileName string `json:"fileName"`
}

func (r UploadURLRequest) Validate() error {
	if r.FileName == "" || NormalizePath(r.FileName) == "" {
		return fmt.Errorf("%w: missing fileName", ErrInvalidRequest)
	}
	return nil
}

type UploadURLResponse struct {
	Path      string `json:"path"`
	SignedURL string `json:"signedUrl"`
	Token     string `json:"token"`
}

type RecordUploadRequest struct {
	Path       string `json:"path"`
	Title      string `json:"title"`
	Category   string `json:"category,omitempty"`
	UploadedBy string `json:"uploadedBy,omitempty"`
}

func (r RecordUploadRequest) Validate() error {
	if r.Path == "" || r.Title == "" {
		return fmt.Errorf("%w: missing path or title", ErrInvalidRequest)
	}
	return nil
}

// GenerateJob is the queued form of a GenerateRequest.
type GenerateJob struct {
	ID         string    `json:"jobId"`
	Bucket     string    `json:"bucket"`
	File       string    `json:"file"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}
