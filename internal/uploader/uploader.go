// Package uploader turns raw request inputs into validated, persisted files.
package uploader

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/policy"
	"github.com/example/fileuploader/internal/processors"
	"github.com/example/fileuploader/internal/storage"
)

// Committer persists a validated file. storage.Committer implements it.
type Committer interface {
	Commit(ctx context.Context, p storage.Placement) (path, name string, err error)
}

// Mirror copies a committed file to secondary storage. storage.Mirror
// implements it.
type Mirror interface {
	Copy(ctx context.Context, field, localPath, contentType string) (string, error)
}

// Observer is notified as items and batches finish. Calls may come from
// several goroutines at once.
type Observer interface {
	ItemDone(batchID string, res Result)
	BatchDone(batchID string, results *Results, err error)
}

// Options configures an Uploader. Zero values get sensible defaults.
type Options struct {
	Workers   int
	Logger    *zap.Logger
	Fetcher   Fetcher
	Factory   *processors.Factory
	Committer Committer
	Mirror    Mirror
	Observers []Observer
}

// Uploader runs batches against a policy registry.
type Uploader struct {
	registry  *policy.Registry
	workers   int
	logger    *zap.Logger
	fetcher   Fetcher
	factory   *processors.Factory
	committer Committer
	mirror    Mirror
	observers []Observer
}

// New creates an Uploader.
func New(registry *policy.Registry, opts Options) *Uploader {
	u := &Uploader{
		registry:  registry,
		workers:   opts.Workers,
		logger:    opts.Logger,
		fetcher:   opts.Fetcher,
		factory:   opts.Factory,
		committer: opts.Committer,
		mirror:    opts.Mirror,
		observers: opts.Observers,
	}
	if u.workers <= 0 {
		u.workers = runtime.NumCPU()
	}
	if u.logger == nil {
		u.logger = zap.NewNop()
	}
	if u.fetcher == nil {
		u.fetcher = NewHTTPFetcher(nil, FetcherConfig{Timeout: 30 * time.Second}, u.logger)
	}
	if u.factory == nil {
		u.factory = processors.NewFactory(processors.WithLogger(u.logger))
	}
	if u.committer == nil {
		u.committer = storage.NewCommitter(u.logger)
	}
	return u
}

type batchIDKey struct{}

// WithBatchID makes the next batch run under id, so observers can be told
// which batch to follow before it starts.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

// BatchID returns the id attached by WithBatchID, or "".
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey{}).(string)
	return id
}

// UploadAll processes multipart files, then body links, then query links.
func (u *Uploader) UploadAll(ctx context.Context, in Input) (*Results, error) {
	return u.Upload(ctx, Normalize(in, SourceAll))
}

// UploadFiles processes multipart files only.
func (u *Uploader) UploadFiles(ctx context.Context, files []FileField) (*Results, error) {
	return u.Upload(ctx, NormalizeFiles(files))
}

// UploadBody processes URL-valued body parameters only.
func (u *Uploader) UploadBody(ctx context.Context, links []Link) (*Results, error) {
	return u.Upload(ctx, NormalizeLinks(OriginBody, links))
}

// UploadQuery processes URL-valued query parameters only.
func (u *Uploader) UploadQuery(ctx context.Context, links []Link) (*Results, error) {
	return u.Upload(ctx, NormalizeLinks(OriginQuery, links))
}

// Upload runs a batch of normalized items. An empty batch, a missing policy or
// an unusable directory aborts before any item runs. After that, an item
// failure aborts the batch unless its policy skips errors; items already
// committed stay on disk. When several items fail, the error of the earliest
// item is returned.
func (u *Uploader) Upload(ctx context.Context, items []Item) (*Results, error) {
	batchID := BatchID(ctx)
	if batchID == "" {
		batchID = uuid.NewString()
	}
	logger := u.logger.With(zap.String("batch", batchID))

	results, err := u.run(ctx, batchID, logger, items)
	for _, o := range u.observers {
		o.BatchDone(batchID, results, err)
	}
	if err != nil {
		logger.Warn("upload batch aborted", zap.Int("items", len(items)), zap.Error(err))
		return nil, err
	}
	logger.Info("upload batch completed", zap.Int("items", len(items)), zap.Int("errors", len(results.Errors())))
	return results, nil
}

func (u *Uploader) run(ctx context.Context, batchID string, logger *zap.Logger, items []Item) (*Results, error) {
	if len(items) == 0 {
		return nil, appErrors.ErrNoFiles
	}
	cfgs, err := u.prepare(items)
	if err != nil {
		return nil, err
	}

	results := newResults(len(items))
	failures := make([]error, len(items))
	// firstFailed holds the lowest index that aborted the batch. Items after it
	// are not started; items before it still run, as they would sequentially.
	var firstFailed atomic.Int64
	firstFailed.Store(int64(len(items)))

	g := new(errgroup.Group)
	g.SetLimit(u.workers)
	for i := range items {
		if firstFailed.Load() < int64(len(items)) || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if int64(i) > firstFailed.Load() {
				return nil
			}
			if err := u.process(ctx, batchID, logger, results, i, items[i], cfgs[i]); err != nil {
				failures[i] = err
				lowerTo(&firstFailed, int64(i))
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range failures {
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil && results.Len() < len(items) {
		return nil, err
	}
	return results, nil
}

func lowerTo(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// prepare resolves every item's policy and readies each distinct directory once.
func (u *Uploader) prepare(items []Item) ([]policy.Config, error) {
	cfgs := make([]policy.Config, len(items))
	dirs := make(map[string]string)
	for i, it := range items {
		cfg, err := u.registry.Get(it.Key)
		if err != nil {
			return nil, err
		}
		dir, ok := dirs[cfg.Directory]
		if !ok {
			if dir, err = policy.PrepareDirectory(cfg.Directory); err != nil {
				return nil, err
			}
			dirs[cfg.Directory] = dir
		}
		cfgs[i] = cfg.WithDirectory(dir)
	}
	return cfgs, nil
}

// process handles one item and records its outcome. It returns an error only
// when the batch must abort.
func (u *Uploader) process(ctx context.Context, batchID string, logger *zap.Logger, results *Results, index int, it Item, cfg policy.Config) error {
	start := time.Now()
	res := Result{Key: it.Key, Origin: it.Origin}

	vf, mirrorID, err := u.handle(ctx, logger, it, cfg)
	res.Duration = time.Since(start)
	if err == nil {
		res.File, res.MirrorID = vf, mirrorID
		u.finish(batchID, results, index, res, logger)
		return nil
	}

	res.Err = appErrors.FromError(err)
	u.finish(batchID, results, index, res, logger)
	if cfg.SkipOnError && !res.Err.Fatal() {
		return nil
	}
	return res.Err
}

func (u *Uploader) finish(batchID string, results *Results, index int, res Result, logger *zap.Logger) {
	if err := results.record(index, res); err != nil {
		logger.Error("duplicate result", zap.String("key", res.Key), zap.Error(err))
	}
	for _, o := range u.observers {
		o.ItemDone(batchID, res)
	}
}

func (u *Uploader) handle(ctx context.Context, logger *zap.Logger, it Item, cfg policy.Config) (*processors.ValidatedFile, string, error) {
	src := processors.Source{Key: it.Key, Name: it.Name, Type: it.Type, Path: it.TmpPath, Size: it.Size}

	if it.Remote() {
		dl := u.fetcher.Fetch(ctx, it.URL)
		defer dl.Release()
		if !dl.OK() {
			return nil, "", appErrors.Wrap(dl.Err, appErrors.ErrFetch, "")
		}
		src.Path, src.Size, src.Type = dl.Path, dl.Size, dl.ContentType
		if dl.Name != "" {
			src.Name = dl.Name
		}
	} else if it.ErrorCode != appErrors.ErrCodeOK {
		return nil, "", appErrors.FromUploadCode(it.ErrorCode)
	}

	h, err := u.factory.Build(cfg)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInvalidPolicy, "")
	}
	vf, err := h.Behave(ctx, src)
	if err != nil {
		return nil, "", err
	}

	path, name, err := u.committer.Commit(ctx, storage.Placement{
		Source:    vf.SourcePath,
		Directory: vf.Directory,
		Names:     vf.CandidateNames(),
		Overwrite: vf.Overwrite,
	})
	if err != nil {
		return nil, "", err
	}
	vf = vf.Committed(path, name)
	logger.Debug("upload committed", zap.String("key", it.Key), zap.String("path", path))

	var mirrorID string
	if u.mirror != nil {
		mirrorID, err = u.mirror.Copy(ctx, cfg.Field, path, vf.ContentType)
		if err != nil {
			logger.Warn("mirror copy failed", zap.String("key", it.Key), zap.Error(err))
			mirrorID = ""
		}
	}
	return vf, mirrorID, nil
}
