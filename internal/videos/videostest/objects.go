package videostest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
)

// ObjectStore keeps objects in memory, keyed by bucket then key.
type ObjectStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte

	// PutErr, when set, is consulted before every write.
	PutErr func(bucket, key string) error
	// DeleteErr, when set, is consulted before every delete.
	DeleteErr func(bucket, key string) error
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{buckets: make(map[string]map[string][]byte)}
}

var _ videos.ObjectStore = (*ObjectStore)(nil)

// Seed stores an object without going through PutErr.
func (s *ObjectStore) Seed(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(bucket)[key] = append([]byte(nil), data...)
}

// Object returns a stored object.
func (s *ObjectStore) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[bucket][key]
	return data, ok
}

// Keys returns every key of a bucket under prefix, sorted.
func (s *ObjectStore) Keys(bucket, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0)
	for key := range s.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *ObjectStore) bucket(name string) map[string][]byte {
	b, ok := s.buckets[name]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[name] = b
	}
	return b
}

func (s *ObjectStore) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	if s.PutErr != nil {
		if err := s.PutErr(bucket, key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(bucket)[key] = data
	return nil
}

func (s *ObjectStore) PutFile(ctx context.Context, bucket, key, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.Put(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (s *ObjectStore) GetStream(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *ObjectStore) Delete(_ context.Context, bucket, key string) error {
	if s.DeleteErr != nil {
		if err := s.DeleteErr(bucket, key); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
	return nil
}

func (s *ObjectStore) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	for _, key := range keys {
		if err := s.Delete(ctx, bucket, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectStore) List(_ context.Context, bucket, prefix string) ([]models.ObjectInfo, error) {
	keys := s.Keys(bucket, prefix)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ObjectInfo, 0, len(keys))
	for _, key := range keys {
		out = append(out, models.ObjectInfo{Key: key, Size: int64(len(s.buckets[bucket][key]))})
	}
	return out, nil
}

// Encoder fakes ffmpeg by writing a tiny playlist and segment per quality.
type Encoder struct {
	mu sync.Mutex

	Info         *models.MediaInfo
	ProbeErr     error
	ThumbnailErr error
	// Fail lists qualities whose encode returns an EncodeError.
	Fail map[models.QualityName]bool
	// OnEncode runs before each encode, outside the lock.
	OnEncode func(quality models.QualityName)

	encoded map[models.QualityName]int
}

func NewEncoder(info *models.MediaInfo) *Encoder {
	return &Encoder{
		Info:    info,
		Fail:    make(map[models.QualityName]bool),
		encoded: make(map[models.QualityName]int),
	}
}

var _ videos.Encoder = (*Encoder)(nil)

// Encodes returns how many times a quality was encoded.
func (e *Encoder) Encodes(quality models.QualityName) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encoded[quality]
}

// SetFail toggles the failure of one quality.
func (e *Encoder) SetFail(quality models.QualityName, fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Fail[quality] = fail
}

func (e *Encoder) Probe(_ context.Context, path string) (*models.MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", videos.ErrUnreadableMedia, err)
	}
	if e.ProbeErr != nil {
		return nil, e.ProbeErr
	}
	info := *e.Info
	return &info, nil
}

func (e *Encoder) Thumbnail(_ context.Context, _ string, _ float64, outPath string) error {
	if e.ThumbnailErr != nil {
		return e.ThumbnailErr
	}
	return os.WriteFile(outPath, []byte("jpeg"), 0644)
}

func (e *Encoder) Encode(ctx context.Context, req *models.EncodeRequest, onProgress func(fraction float64)) (*models.EncodeResult, error) {
	quality := req.Profile.Name
	if e.OnEncode != nil {
		e.OnEncode(quality)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.encoded[quality]++
	fail := e.Fail[quality]
	e.mu.Unlock()
	if fail {
		return nil, &videos.EncodeError{Quality: string(quality), Message: "exit status 1"}
	}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, err
	}
	playlist := filepath.Join(req.OutputDir, models.VariantPlaylist)
	if err := os.WriteFile(playlist, []byte("#EXTM3U\n#EXTINF:6.0,\nseg_000.ts\n#EXT-X-ENDLIST\n"), 0644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(req.OutputDir, "seg_000.ts"), []byte("ts"), 0644); err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(1)
	}
	return &models.EncodeResult{
		Quality:      quality,
		OutputDir:    req.OutputDir,
		PlaylistPath: playlist,
		SegmentCount: 1,
	}, nil
}
