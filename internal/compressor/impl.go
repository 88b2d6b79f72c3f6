package compressor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"imgpress-go/internal/envelope"
	"imgpress-go/internal/extractor"
	"imgpress-go/internal/logger"
	"imgpress-go/internal/statistics"
	"imgpress-go/internal/targetsize"
)

// DefaultCompressor is the default implementation of the Compressor interface.
type DefaultCompressor struct {
	codec   targetsize.Codec
	workers int
	log     logrus.FieldLogger
	stats   *statistics.Statistics
	marker  string
	meta    *extractor.EXIFExtractor
}

// Option configures a DefaultCompressor.
type Option func(*DefaultCompressor)

// WithWorkers bounds the number of images processed concurrently.
func WithWorkers(n int) Option {
	return func(c *DefaultCompressor) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *DefaultCompressor) { c.log = l }
}

// WithStatistics records every result in s.
func WithStatistics(s *statistics.Statistics) Option {
	return func(c *DefaultCompressor) { c.stats = s }
}

// NewDefaultCompressor creates a compressor driving codec.
func NewDefaultCompressor(codec targetsize.Codec, opts ...Option) *DefaultCompressor {
	c := &DefaultCompressor{
		codec:   codec,
		workers: max(runtime.NumCPU(), 2),
		log:     logger.Discard(),
		stats:   statistics.NewStatistics(),
		marker:  Marker,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.meta = extractor.NewEXIFExtractor(c.log)
	return c
}

// Statistics returns the counters the compressor records into.
func (c *DefaultCompressor) Statistics() *statistics.Statistics {
	return c.stats
}

// Compress encodes every item with params. Results keep input order.
//
// Invalid params are rejected before any codec call. When ctx is cancelled,
// images not yet finished fail with ctx.Err(); if none finished, the
// context error is returned.
func (c *DefaultCompressor) Compress(ctx context.Context, items []Item, params Params) (*Batch, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no images", targetsize.ErrInvalidParameters)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:         params.BatchID,
		TotalCount: len(items),
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	log := logger.WithBatch(c.log, batch.ID, "compress")
	log.WithFields(logrus.Fields{
		"images":   len(items),
		"targetKB": params.TargetKB,
		"format":   params.Format,
	}).Info("Batch started")
	c.stats.IncrementBatchesStarted()
	c.stats.AddImagesReceived(len(items))

	start := time.Now()
	batch.Results = c.run(len(items), params.Progress, func(i int) Result {
		return c.compressItem(ctx, log, i, items[i], params)
	})

	finished := 0
	for _, r := range batch.Results {
		if r.Success {
			batch.SuccessCount++
		}
		if !errors.Is(r.Error, context.Canceled) && !errors.Is(r.Error, context.DeadlineExceeded) {
			finished++
		}
	}
	if finished == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c.stats.IncrementBatchesCompleted()
	log.WithFields(logrus.Fields{
		"success":  batch.SuccessCount,
		"total":    batch.TotalCount,
		"duration": time.Since(start).String(),
	}).Info("Batch completed")
	return batch, nil
}

// run processes n jobs on the worker pool and returns their results by index.
func (c *DefaultCompressor) run(n int, progress ProgressFunc, work func(i int) Result) []Result {
	type result struct {
		index int
		res   Result
	}

	jobs := make(chan int, n)
	results := make(chan result, n)

	numWorkers := min(c.workers, n)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- result{index: i, res: work(i)}
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	resArr := make([]Result, n)
	for r := range results {
		resArr[r.index] = r.res
		if progress != nil {
			progress(r.res)
		}
	}
	return resArr
}

// compressItem encodes one image. Errors are recorded on the result.
func (c *DefaultCompressor) compressItem(ctx context.Context, batchLog logrus.FieldLogger, i int, item Item, params Params) Result {
	res := Result{
		Index:        i,
		Name:         item.Name,
		Format:       params.Format,
		OriginalSize: int64(len(item.Data)),
		StartedAt:    time.Now(),
	}
	log := logger.WithImage(batchLog, i, item.Name)
	if err := ctx.Err(); err != nil {
		return cancelled(res, err)
	}

	var (
		enc *targetsize.EncodeResult
		err error
	)
	if params.TargetKB > 0 {
		enc, err = targetsize.EncodeToTarget(ctx, params.request(item.Data), c.codec)
	} else {
		enc, err = c.encodeFixed(item.Data, params)
	}
	res.FinishedAt = time.Now()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return cancelled(res, err)
	}
	if err != nil {
		return c.fail(log, res, err)
	}

	res.Data = enc.Bytes
	res.CompressedSize = int64(len(enc.Bytes))
	res.QualityUsed = enc.QualityUsed
	res.SizeKB = enc.SizeKB
	res.MetTarget = enc.MetTarget
	res.NonMonotonic = enc.NonMonotonic
	res.Trials = enc.Trials
	res.Hash = envelope.ContentHash(enc.Bytes)
	res.Success = true
	if res.OriginalSize > 0 {
		res.PercentageSaved = float64(res.OriginalSize-res.CompressedSize) * 100 / float64(res.OriginalSize)
	}

	fields := logrus.Fields{
		"quality": enc.QualityUsed,
		"sizeKB":  fmt.Sprintf("%.2f", enc.SizeKB),
		"trials":  enc.Trials,
	}
	switch {
	case params.TargetKB == 0:
		res.Action = ActionCompressed
		res.Message = fmt.Sprintf("Compressed at quality %d", enc.QualityUsed)
		log.WithFields(fields).Debug("Image compressed")
	case enc.MetTarget:
		res.Action = ActionCompressed
		res.Message = fmt.Sprintf("Fits %.1f KB at quality %d", params.TargetKB, enc.QualityUsed)
		log.WithFields(fields).Debug("Image compressed")
	default:
		res.Action = ActionFallback
		res.Message = fmt.Sprintf("Target %.1f KB not reachable, smallest output is %.1f KB at quality %d",
			params.TargetKB, enc.SizeKB, enc.QualityUsed)
		log.WithFields(fields).Warn("Target not reachable")
	}
	if enc.NonMonotonic {
		c.stats.IncrementNonMonotonic()
		log.Warn("Encoded size not monotonic in quality")
	}
	if params.TargetKB > 0 {
		c.stats.RecordCompressed(string(params.Format), enc.MetTarget, enc.Trials, res.OriginalSize, res.CompressedSize)
	} else {
		c.stats.RecordFixed(string(params.Format), res.OriginalSize, res.CompressedSize)
	}
	return res
}

func (c *DefaultCompressor) encodeFixed(src []byte, params Params) (*targetsize.EncodeResult, error) {
	img, err := c.codec.Decode(src, params.Resize)
	if err != nil {
		return nil, &targetsize.CodecFailure{Reason: "decode source", Err: err}
	}
	data, err := c.codec.Encode(img, params.Quality, params.Format)
	if err != nil {
		return nil, &targetsize.CodecFailure{Quality: params.Quality, Reason: "encode " + string(params.Format), Err: err}
	}
	return &targetsize.EncodeResult{
		Bytes:       data,
		Format:      params.Format,
		QualityUsed: params.Quality,
		SizeKB:      float64(len(data)) / 1024,
		MetTarget:   true,
		Trials:      1,
	}, nil
}

// cancelled marks an image the batch never reached. Its buffers are dropped.
func cancelled(res Result, err error) Result {
	res.Action = ActionError
	res.Message = err.Error()
	res.Error = err
	res.FinishedAt = time.Now()
	return res
}

func (c *DefaultCompressor) fail(log logrus.FieldLogger, res Result, err error) Result {
	res.Action = ActionError
	res.Message = err.Error()
	res.Error = err
	res.Success = false

	var failure *targetsize.CodecFailure
	if errors.As(err, &failure) {
		c.stats.IncrementCodecFailures()
	}
	c.stats.IncrementImagesWithErrors()
	c.stats.AddError(res.Name, "compress", err.Error())
	log.WithError(err).Warn("Compression failed")
	return res
}
