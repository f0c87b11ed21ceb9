// Package processor turns originals into derivatives and manages their
// lifecycle in the object store and the metadata table.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"photo-thumbnailer/internal/metrics"
	"photo-thumbnailer/internal/models"
	"photo-thumbnailer/internal/objectstore"
)

// UploadURLTTL is how long a signed upload URL stays valid.
const UploadURLTTL = 60 * time.Second

type Transformer interface {
	Transform(src []byte, width int, f models.Format) ([]byte, error)
}

// MetadataStore is implemented by *storage.Storage.
type MetadataStore interface {
	GetImageByPath(ctx context.Context, path string) (*models.ImageRecord, error)
	SaveImage(ctx context.Context, img *models.ImageRecord) error
	UpdateImage(ctx context.Context, img *models.ImageRecord) error
	UpdateGeneratedPaths(ctx context.Context, path string, gp models.GeneratedPaths) error
	DeleteImage(ctx context.Context, id int64) error
	DeleteImageByPath(ctx context.Context, path string) error
}

type Deps struct {
	Store          objectstore.Store
	Codec          Transformer
	Metadata       MetadataStore // optional
	Metrics        *metrics.Collector
	Log            *slog.Logger
	Sizes          []models.Size
	Formats        []models.Format
	OriginalBucket string
	DerivedBucket  string
}

type Processor struct {
	store          objectstore.Store
	codec          Transformer
	meta           MetadataStore
	metrics        *metrics.Collector
	log            *slog.Logger
	sizes          []models.Size
	formats        []models.Format
	originalBucket string
	derivedBucket  string
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	sizes := d.Sizes
	if len(sizes) == 0 {
		sizes = models.DefaultSizes()
	}
	formats := d.Formats
	if len(formats) == 0 {
		formats = models.DefaultFormats()
	}
	return &Processor{
		store:          d.Store,
		codec:          d.Codec,
		meta:           d.Metadata,
		metrics:        d.Metrics,
		log:            log.With("component", "processor"),
		sizes:          sizes,
		formats:        formats,
		originalBucket: d.OriginalBucket,
		derivedBucket:  d.DerivedBucket,
	}
}

// MetadataEnabled reports whether a metadata table is configured.
func (p *Processor) MetadataEnabled() bool {
	return p.meta != nil
}

// Generate fetches the original and produces every (size, format)
// derivative. A pair that fails is left null in the result; only a failed
// fetch of the original is returned as an error.
func (p *Processor) Generate(ctx context.Context, bucket, file string) (models.GeneratedPaths, error) {
	const op = "processor.Generate"

	if bucket == "" || file == "" {
		return nil, fmt.Errorf("%s: %w: missing bucket or file", op, models.ErrInvalidRequest)
	}
	key := models.NormalizePath(file)
	log := p.log.With("bucket", bucket, "path", key)

	original, err := p.store.Download(ctx, bucket, key)
	if err != nil {
		p.metrics.RecordOriginalFailure()
		log.Error("failed to fetch original", "error", err)
		return nil, fmt.Errorf("%s: fetch original: %w", op, err)
	}

	gp := models.NewGeneratedPaths(p.sizes, p.formats)
	for _, size := range p.sizes {
		for _, format := range p.formats {
			derived := models.DerivedKey(size, format, key)
			start := time.Now()
			err := p.derive(ctx, original, size, format, derived)
			p.metrics.RecordDerivative(size.Name, format.Name, time.Since(start), err)
			if err != nil {
				log.Error("derivative failed", "size", size.Name, "format", format.Name, "error", err)
				continue
			}
			gp.Set(size.Name, format.Name, derived)
		}
	}

	log.Info("thumbnails generated", "failed", gp.Failed(), "total", len(p.sizes)*len(p.formats))
	p.recordGenerated(ctx, key, gp)
	return gp, nil
}

func (p *Processor) derive(ctx context.Context, original []byte, size models.Size, format models.Format, key string) error {
	data, err := p.codec.Transform(original, size.Width, format)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	if err := p.store.Upload(ctx, p.derivedBucket, key, data, format.ContentType); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (p *Processor) recordGenerated(ctx context.Context, key string, gp models.GeneratedPaths) {
	if p.meta == nil {
		return
	}
	err := p.meta.UpdateGeneratedPaths(ctx, key, gp)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrNotFound):
		p.log.Debug("no metadata row for generated original", "path", key)
	default:
		p.log.Warn("failed to record generated paths", "path", key, "error", err)
	}
}

// DeleteJob removes the derivatives, the original and the metadata row of a
// job. Each phase is best-effort: failures are logged and counted but never
// stop the remaining deletions.
func (p *Processor) DeleteJob(ctx context.Context, req models.DeleteJobRequest) error {
	const op = "processor.DeleteJob"

	req = req.Flatten()
	if req.Path == "" {
		return fmt.Errorf("%s: %w: missing path", op, models.ErrInvalidRequest)
	}
	key := models.NormalizePath(req.Path)
	log := p.log.With("path", key)

	for _, derived := range p.derivedKeys(key, req.DerivedPaths) {
		err := p.store.Delete(ctx, p.derivedBucket, derived)
		p.metrics.RecordDelete("derived", err)
		if err != nil {
			log.Warn("failed to delete derivative", "key", derived, "error", err)
		}
	}

	err := p.store.Delete(ctx, p.originalBucket, key)
	p.metrics.RecordDelete("original", err)
	if err != nil {
		log.Warn("failed to delete original", "error", err)
	}

	if p.meta != nil {
		if req.ID != 0 {
			err = p.meta.DeleteImage(ctx, req.ID)
		} else {
			err = p.meta.DeleteImageByPath(ctx, key)
		}
		p.metrics.RecordDelete("record", err)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			log.Warn("failed to delete metadata row", "id", req.ID, "error", err)
		}
	}

	log.Info("job deleted")
	return nil
}

// derivedKeys returns the keys to remove from the derived bucket. Supplied
// keys are only trusted when they match the key the pair would have been
// written to; without a mapping every configured pair is recomputed.
func (p *Processor) derivedKeys(key string, supplied models.GeneratedPaths) []string {
	if supplied == nil {
		return models.ExpectedPaths(p.sizes, p.formats, key).Keys()
	}

	var keys []string
	for sizeName, inner := range supplied {
		for formatName, derived := range inner {
			if derived == nil || *derived == "" {
				continue
			}
			format, err := models.FormatByName(formatName)
			if err != nil {
				p.log.Warn("skipping derivative of unknown format", "format", formatName, "key", *derived)
				continue
			}
			want := models.DerivedKey(models.Size{Name: sizeName}, format, key)
			if models.NormalizePath(*derived) != want {
				p.log.Warn("skipping derivative outside job", "key", *derived, "expected", want)
				continue
			}
			keys = append(keys, want)
		}
	}
	return keys
}

// SignUpload issues a short-lived upload URL for fileName in the original
// bucket.
func (p *Processor) SignUpload(ctx context.Context, fileName string) (*models.UploadURLResponse, error) {
	const op = "processor.SignUpload"

	key := models.NormalizePath(fileName)
	if key == "" {
		return nil, fmt.Errorf("%s: %w: missing fileName", op, models.ErrInvalidRequest)
	}
	signed, err := p.store.SignUpload(ctx, p.originalBucket, key, UploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.UploadURLResponse{Path: key, SignedURL: signed.URL, Token: signed.Token}, nil
}

// RecordUpload creates the metadata row for path, or updates it when one
// already exists.
func (p *Processor) RecordUpload(ctx context.Context, req models.RecordUploadRequest) (*models.ImageRecord, error) {
	const op = "processor.RecordUpload"

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.meta == nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrMetadataDisabled)
	}
	key := models.NormalizePath(req.Path)

	existing, err := p.meta.GetImageByPath(ctx, key)
	switch {
	case errors.Is(err, models.ErrNotFound):
		img := &models.ImageRecord{
			Path:           key,
			Title:          req.Title,
			Category:       req.Category,
			Bucket:         p.originalBucket,
			GeneratedPaths: models.GeneratedPaths{},
			UploadedBy:     req.UploadedBy,
		}
		if err := p.meta.SaveImage(ctx, img); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.log.Info("upload recorded", "path", key, "id", img.ID)
		return img, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	existing.Title = req.Title
	existing.Category = req.Category
	existing.UploadedBy = req.UploadedBy
	if existing.Bucket == "" {
		existing.Bucket = p.originalBucket
	}
	if err := p.meta.UpdateImage(ctx, existing); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.log.Info("upload updated", "path", key, "id", existing.ID)
	return existing, nil
}
