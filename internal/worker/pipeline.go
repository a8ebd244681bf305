package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/encoder"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/google/uuid"
)

type Stage string

const (
	StageDownloading  Stage = "downloading"
	StageProbing      Stage = "probing"
	StageThumbnailing Stage = "thumbnailing"
	StageEncoding     Stage = "encoding"
	StageUploading    Stage = "uploading"
	StageFinalizing   Stage = "finalizing"
	StageCleaning     Stage = "cleaning"
	StageDone         Stage = "done"
	StageErrored      Stage = "errored"
)

const (
	progressStarted    = 5
	progressDownloaded = 10
	progressProbed     = 20
	progressThumbnail  = 30
	progressEncoded    = 80
	progressUploaded   = 85
	progressMaster     = 90
	progressFinalized  = 95
)

// StageError tags a fatal pipeline error with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// Pipeline runs the download → probe → thumbnail → encode → upload → finalize → cleanup
// sequence for one job.
type Pipeline struct {
	cfg         *config.Config
	logger      logger.Logger
	videoRepo   videos.Repository
	qualityRepo videos.QualityRepository
	queue       videos.JobQueue
	store       videos.ObjectStore
	encoder     videos.Encoder
}

func NewPipeline(
	cfg *config.Config,
	logger logger.Logger,
	videoRepo videos.Repository,
	qualityRepo videos.QualityRepository,
	queue videos.JobQueue,
	store videos.ObjectStore,
	encoder videos.Encoder,
) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		logger:      logger,
		videoRepo:   videoRepo,
		qualityRepo: qualityRepo,
		queue:       queue,
		store:       store,
		encoder:     encoder,
	}
}

// Handle runs a dequeued job and reports the outcome to the queue.
func (p *Pipeline) Handle(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			p.logger.Errorf("Handle - job %s panicked: %v", job.ID, r)
			if _, failErr := p.queue.Fail(context.WithoutCancel(ctx), job, err.Error(), true); failErr != nil {
				p.logger.Errorf("Handle - failed to report panic for job %s: %v", job.ID, failErr)
			}
		}
	}()

	runErr := p.Run(ctx, job)
	switch {
	case runErr == nil:
		return p.complete(ctx, job)
	case errors.Is(runErr, videos.ErrLeaseLost):
		p.logger.Warnf("Handle - job %s was handed to another worker, dropping delivery %d", job.ID, job.Deliveries)
		return nil
	case errors.Is(runErr, videos.ErrVideoNotFound):
		p.logger.Warnf("Handle - video %s no longer exists, dropping job %s", job.Payload.VideoID, job.ID)
		return p.complete(ctx, job)
	case errors.Is(runErr, videos.ErrVideoCancelled):
		p.logger.Infof("Handle - video %s was cancelled, job %s stopped", job.Payload.VideoID, job.ID)
		return p.complete(ctx, job)
	case ctx.Err() != nil:
		// shutting down: the lease expires and the job is recovered by another worker
		p.logger.Warnf("Handle - job %s interrupted: %v", job.ID, runErr)
		return runErr
	}

	willRetry, err := p.queue.Fail(ctx, job, runErr.Error(), videos.IsRetryable(runErr))
	if errors.Is(err, videos.ErrLeaseLost) {
		p.logger.Warnf("Handle - job %s failed after its lease moved to another worker: %v", job.ID, runErr)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to report job failure: %w", err)
	}
	p.logger.Errorf("Handle - job %s failed (retry scheduled: %t): %v", job.ID, willRetry, runErr)
	return nil
}

func (p *Pipeline) complete(ctx context.Context, job *models.Job) error {
	err := p.queue.Complete(ctx, job)
	if errors.Is(err, videos.ErrLeaseLost) {
		p.logger.Warnf("Handle - job %s finished after its lease moved to another worker", job.ID)
		return nil
	}
	return err
}

// Run executes every pipeline step for the job's video. Per-quality encode failures are recorded
// in the ledger and never returned.
func (p *Pipeline) Run(ctx context.Context, job *models.Job) error {
	videoID := job.Payload.VideoID

	video, err := p.videoRepo.GetVideoByID(ctx, videoID)
	if err != nil {
		return err
	}
	if video.Status == models.VideoStatusCancelled || video.IsDeleted() {
		return videos.ErrVideoCancelled
	}
	if job.Redelivery() && video.RetryCount >= p.cfg.Worker.MaxVideoRetries {
		msg := fmt.Sprintf("%v: %d retries used", videos.ErrRetryLimitExceeded, video.RetryCount)
		if err = p.videoRepo.MarkFailed(ctx, videoID, msg); err != nil {
			return err
		}
		return videos.ErrRetryLimitExceeded
	}

	video, err = p.videoRepo.StartProcessing(ctx, videoID, job.Redelivery())
	if err != nil {
		return err
	}

	scratch := filepath.Join(p.cfg.Worker.ScratchDir, "video-"+videoID.String())
	if err = os.RemoveAll(scratch); err != nil {
		return p.fail(ctx, videoID, stageErr(StageDownloading, err))
	}
	if err = os.MkdirAll(scratch, 0755); err != nil {
		return p.fail(ctx, videoID, stageErr(StageDownloading, err))
	}
	defer p.cleanup(scratch)
	if err = p.reportProgress(ctx, job, progressStarted); err != nil {
		return err
	}

	if err = p.process(ctx, job, video, scratch); err != nil {
		return p.fail(ctx, videoID, err)
	}
	return nil
}

func (p *Pipeline) process(ctx context.Context, job *models.Job, video *models.Video, scratch string) error {
	videoID := video.VideoID

	rawKey := job.Payload.RawFilePath
	if rawKey == "" {
		rawKey = video.RawFilePath
	}
	src := filepath.Join(scratch, "source"+path.Ext(rawKey))
	if err := p.download(ctx, job, rawKey, src); err != nil {
		return stageErr(StageDownloading, err)
	}
	if err := p.reportProgress(ctx, job, progressDownloaded); err != nil {
		return err
	}

	info, err := p.encoder.Probe(ctx, src)
	if err != nil {
		return stageErr(StageProbing, err)
	}
	if info.DurationSeconds > p.cfg.Worker.MaxDurationSeconds {
		return stageErr(StageProbing, fmt.Errorf("%w: %.1fs exceeds %.0fs",
			videos.ErrDurationExceeded, info.DurationSeconds, p.cfg.Worker.MaxDurationSeconds))
	}
	if err = p.reportProgress(ctx, job, progressProbed); err != nil {
		return err
	}

	thumbnail := filepath.Join(scratch, models.ThumbnailName)
	if err = p.encoder.Thumbnail(ctx, src, info.ThumbnailOffset(), thumbnail); err != nil {
		return stageErr(StageThumbnailing, err)
	}
	if err = p.reportProgress(ctx, job, progressThumbnail); err != nil {
		return err
	}

	fresh, err := p.encodeQualities(ctx, job, videoID, src, scratch, info)
	if err != nil {
		return stageErr(StageEncoding, err)
	}
	if err = p.reportProgress(ctx, job, progressEncoded); err != nil {
		return err
	}

	if err = p.checkCancelled(ctx, videoID); err != nil {
		return err
	}
	ledger, err := p.upload(ctx, job, videoID, thumbnail, fresh)
	if err != nil {
		return stageErr(StageUploading, err)
	}

	if err = p.checkCancelled(ctx, videoID); err != nil {
		return err
	}
	if err = p.finalize(ctx, videoID, info, ledger); err != nil {
		return stageErr(StageFinalizing, err)
	}
	return p.reportProgress(ctx, job, progressFinalized)
}

// fail records a fatal error on the video. Cancellation, a lost lease and shutdown leave the row
// alone.
func (p *Pipeline) fail(ctx context.Context, videoID uuid.UUID, err error) error {
	if errors.Is(err, videos.ErrVideoCancelled) || errors.Is(err, videos.ErrLeaseLost) || ctx.Err() != nil {
		return err
	}
	if markErr := p.videoRepo.MarkFailed(context.WithoutCancel(ctx), videoID, err.Error()); markErr != nil {
		p.logger.Errorf("Run - failed to mark video %s failed: %v", videoID, markErr)
	}
	return err
}

func (p *Pipeline) cleanup(scratch string) {
	if err := os.RemoveAll(scratch); err != nil {
		p.logger.Warnf("Run - failed to remove scratch dir %s: %v", scratch, err)
	}
}

func (p *Pipeline) checkCancelled(ctx context.Context, videoID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	video, err := p.videoRepo.GetVideoByID(ctx, videoID)
	if err != nil {
		return err
	}
	if video.Status == models.VideoStatusCancelled || video.IsDeleted() {
		return videos.ErrVideoCancelled
	}
	return nil
}

// reportProgress records progress and renews the job lease. Only a lost lease is returned, other
// queue errors are logged.
func (p *Pipeline) reportProgress(ctx context.Context, job *models.Job, progress float64) error {
	err := p.queue.UpdateProgress(ctx, job, progress)
	if errors.Is(err, videos.ErrLeaseLost) {
		return err
	}
	if err != nil {
		p.logger.Warnf("Run - failed to update progress of %s: %v", job.ID, err)
	}
	return nil
}

// keepLease renews the lease every third of its TTL until stop is called, for steps that report
// no progress of their own.
func (p *Pipeline) keepLease(ctx context.Context, job *models.Job, progress float64) (stop func()) {
	interval := p.cfg.Worker.LockTTL() / 3
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.reportProgress(ctx, job, progress); err != nil {
					p.logger.Warnf("Run - job %s lost its lease: %v", job.ID, err)
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Pipeline) download(ctx context.Context, job *models.Job, key, dst string) error {
	defer p.keepLease(ctx, job, progressStarted)()

	body, err := p.store.GetStream(ctx, p.cfg.S3.RawBucket, key)
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create local video file: %w", err)
	}
	defer out.Close()
	if _, err = io.Copy(out, body); err != nil {
		return fmt.Errorf("failed to write video file: %w", err)
	}
	return out.Sync()
}

// encodeQualities upserts the ledger and encodes every quality that still needs it, highest
// priority first. Only cancellation, shutdown or ledger errors are returned.
func (p *Pipeline) encodeQualities(
	ctx context.Context,
	job *models.Job,
	videoID uuid.UUID,
	src, scratch string,
	info *models.MediaInfo,
) ([]*models.EncodeResult, error) {
	ladder := p.cfg.Encoder.Ladder
	if err := p.qualityRepo.UpsertPending(ctx, videoID, ladder); err != nil {
		return nil, err
	}
	rows, err := p.qualityRepo.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	todo, err := p.pendingQualities(ctx, videoID, rows)
	if err != nil {
		return nil, err
	}
	if len(todo) == 0 {
		return nil, nil
	}

	tracker := newProgressTracker(len(todo), func(pct float64) { _ = p.reportProgress(ctx, job, pct) })

	fanout := p.cfg.Encoder.Fanout
	if fanout < 1 {
		fanout = 1
	}
	sem := make(chan struct{}, fanout)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  = make([]*models.EncodeResult, len(todo))
		firstErr error
	)

	for i, row := range todo {
		if err = p.checkCancelled(ctx, videoID); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		mu.Lock()
		stop := firstErr != nil
		mu.Unlock()
		if stop {
			break
		}

		profile, _ := models.FindProfile(ladder, row.Quality)
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, profile models.QualityProfile) {
			defer func() {
				<-sem
				wg.Done()
			}()
			res, err := p.encodeOne(ctx, videoID, profile, src, scratch, info, tracker.reporter(idx))
			mu.Lock()
			defer mu.Unlock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			results[idx] = res
		}(i, profile)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	fresh := make([]*models.EncodeResult, 0, len(results))
	for _, res := range results {
		if res != nil {
			fresh = append(fresh, res)
		}
	}
	return fresh, nil
}

// pendingQualities picks the ladder rows to encode. A ready row whose playlist is missing from
// the encoded bucket, left behind by an interrupted upload, is encoded again.
func (p *Pipeline) pendingQualities(ctx context.Context, videoID uuid.UUID, rows []models.VideoQuality) ([]models.VideoQuality, error) {
	todo := make([]models.VideoQuality, 0, len(rows))
	for _, row := range rows {
		if _, ok := models.FindProfile(p.cfg.Encoder.Ladder, row.Quality); !ok {
			continue
		}
		if row.NeedsEncode(p.cfg.Worker.MaxQualityRetries) {
			todo = append(todo, row)
			continue
		}
		if row.Status != models.QualityStatusReady {
			continue
		}
		uploaded, err := p.playlistUploaded(ctx, videoID, row.Quality)
		if err != nil {
			return nil, err
		}
		if !uploaded {
			p.logger.Warnf("Run - %s of video %s is ready but not stored, encoding again", row.Quality, videoID)
			todo = append(todo, row)
		}
	}
	models.SortByPriority(todo)
	return todo, nil
}

func (p *Pipeline) playlistUploaded(ctx context.Context, videoID uuid.UUID, quality models.QualityName) (bool, error) {
	key := models.EncodedObjectKey(videoID, quality, models.VariantPlaylist)
	objects, err := p.store.List(ctx, p.cfg.S3.EncodedBucket, key)
	if err != nil {
		return false, fmt.Errorf("failed to list encoded objects: %w", err)
	}
	for _, obj := range objects {
		if obj.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pipeline) encodeOne(
	ctx context.Context,
	videoID uuid.UUID,
	profile models.QualityProfile,
	src, scratch string,
	info *models.MediaInfo,
	onProgress func(float64),
) (*models.EncodeResult, error) {
	if err := p.qualityRepo.MarkProcessing(ctx, videoID, profile.Name); err != nil {
		return nil, err
	}

	res, err := p.encoder.Encode(ctx, &models.EncodeRequest{
		SourcePath:      src,
		OutputDir:       filepath.Join(scratch, string(profile.Name)),
		Profile:         profile,
		DurationSeconds: info.DurationSeconds,
		SegmentSeconds:  p.cfg.Encoder.SegmentSeconds,
	}, onProgress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Errorf("Run - encode %s of video %s failed: %v", profile.Name, videoID, err)
		if markErr := p.qualityRepo.MarkFailed(ctx, videoID, profile.Name, err.Error()); markErr != nil {
			return nil, markErr
		}
		onProgress(1)
		return nil, nil
	}

	// a cancel that landed during the encode discards the output, so the row must not claim it
	if err = p.checkCancelled(ctx, videoID); err != nil {
		if markErr := p.qualityRepo.MarkPending(context.WithoutCancel(ctx), videoID, profile.Name); markErr != nil {
			p.logger.Warnf("Run - failed to release %s of video %s: %v", profile.Name, videoID, markErr)
		}
		return nil, err
	}
	playlistKey := models.EncodedObjectKey(videoID, profile.Name, models.VariantPlaylist)
	if err = p.qualityRepo.MarkReady(ctx, videoID, profile.Name, playlistKey, res.SegmentCount); err != nil {
		return nil, err
	}
	return res, nil
}

// upload stores the thumbnail, the freshly encoded renditions and a master playlist listing every
// ready quality. Keys are deterministic so a re-run overwrites instead of duplicating.
func (p *Pipeline) upload(
	ctx context.Context,
	job *models.Job,
	videoID uuid.UUID,
	thumbnail string,
	fresh []*models.EncodeResult,
) ([]models.VideoQuality, error) {
	stop := p.keepLease(ctx, job, progressEncoded)
	defer stop()
	if err := p.store.PutFile(ctx, p.cfg.S3.ThumbnailBucket, models.ThumbnailKey(videoID), thumbnail, contentType(thumbnail)); err != nil {
		return nil, fmt.Errorf("%w: thumbnail: %v", videos.ErrUploadFailure, err)
	}
	for _, res := range fresh {
		if err := p.uploadDirectory(ctx, videoID, res); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", videos.ErrUploadFailure, res.Quality, err)
		}
	}
	stop()
	if err := p.reportProgress(ctx, job, progressUploaded); err != nil {
		return nil, err
	}

	ledger, err := p.qualityRepo.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	ready := p.readyProfiles(ledger)
	if len(ready) > 0 {
		master := []byte(encoder.MasterPlaylist(ready))
		err = p.store.Put(ctx, p.cfg.S3.EncodedBucket, models.MasterPlaylistKey(videoID),
			bytes.NewReader(master), int64(len(master)), contentType(models.MasterPlaylistName))
		if err != nil {
			return nil, fmt.Errorf("%w: master playlist: %v", videos.ErrUploadFailure, err)
		}
	}
	if err = p.reportProgress(ctx, job, progressMaster); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (p *Pipeline) uploadDirectory(ctx context.Context, videoID uuid.UUID, res *models.EncodeResult) error {
	return filepath.WalkDir(res.OutputDir, func(local string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(res.OutputDir, local)
		if err != nil {
			return err
		}
		key := models.EncodedObjectKey(videoID, res.Quality, filepath.ToSlash(rel))
		return p.store.PutFile(ctx, p.cfg.S3.EncodedBucket, key, local, contentType(local))
	})
}

// readyProfiles maps ready ledger rows back to ladder profiles, highest priority first.
func (p *Pipeline) readyProfiles(ledger []models.VideoQuality) []models.QualityProfile {
	rows := make([]models.VideoQuality, 0, len(ledger))
	for _, row := range ledger {
		if row.Status == models.QualityStatusReady {
			rows = append(rows, row)
		}
	}
	models.SortByPriority(rows)
	profiles := make([]models.QualityProfile, 0, len(rows))
	for _, row := range rows {
		if profile, ok := models.FindProfile(p.cfg.Encoder.Ladder, row.Quality); ok {
			profiles = append(profiles, profile)
		}
	}
	return profiles
}

func (p *Pipeline) finalize(ctx context.Context, videoID uuid.UUID, info *models.MediaInfo, ledger []models.VideoQuality) error {
	requested := make([]models.VideoQuality, 0, len(ledger))
	for _, row := range ledger {
		if _, ok := models.FindProfile(p.cfg.Encoder.Ladder, row.Quality); ok {
			requested = append(requested, row)
		}
	}
	status, ready := models.AggregateStatus(requested, p.cfg.Worker.MinimumQualities)

	input := &models.VideoFinalize{
		VideoID:            videoID,
		Status:             status,
		AvailableQualities: ready,
		Duration:           info.DurationSeconds,
		Width:              info.Width,
		Height:             info.Height,
		ProcessedAt:        time.Now().UTC(),
	}
	if status.Servable() {
		master := p.cfg.S3.PublicURL(p.cfg.S3.EncodedBucket, models.MasterPlaylistKey(videoID))
		thumb := p.cfg.S3.PublicURL(p.cfg.S3.ThumbnailBucket, models.ThumbnailKey(videoID))
		input.HLSMasterURL = &master
		input.ThumbnailURL = &thumb
	} else {
		msg := fmt.Sprintf("only %d of %d qualities ready, %d required", len(ready), len(requested), p.cfg.Worker.MinimumQualities)
		input.ErrorMessage = &msg
	}

	if err := p.videoRepo.Finalize(ctx, input); err != nil {
		return err
	}
	p.logger.Infof("Run - video %s finalized as %s with qualities [%s]", videoID, status, strings.Join(ready, ","))
	return nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp4", ".m4s":
		return "video/mp4"
	}
	return "application/octet-stream"
}

// progressTracker interpolates encode progress between 30 and 80 across qualities.
type progressTracker struct {
	mu        sync.Mutex
	fractions []float64
	last      int
	report    func(float64)
}

func newProgressTracker(total int, report func(float64)) *progressTracker {
	return &progressTracker{
		fractions: make([]float64, total),
		last:      progressThumbnail,
		report:    report,
	}
}

func (t *progressTracker) reporter(idx int) func(float64) {
	return func(fraction float64) {
		t.mu.Lock()
		if fraction > t.fractions[idx] {
			t.fractions[idx] = fraction
		}
		sum := 0.0
		for _, f := range t.fractions {
			sum += f
		}
		pct := progressThumbnail + (progressEncoded-progressThumbnail)*sum/float64(len(t.fractions))
		changed := int(pct) > t.last
		if changed {
			t.last = int(pct)
		}
		t.mu.Unlock()
		if changed {
			t.report(float64(int(pct)))
		}
	}
}
