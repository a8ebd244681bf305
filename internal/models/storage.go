package models

import (
	"fmt"
	"path"

	"github.com/google/uuid"
)

// ObjectInfo is a listing entry of a bucket.
type ObjectInfo struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

const (
	MasterPlaylistName = "master.m3u8"
	ThumbnailName      = "thumbnail.jpg"
	VariantPlaylist    = "index.m3u8"
)

// VideoPrefix is the per-video prefix shared by the encoded and thumbnail buckets.
func VideoPrefix(videoID uuid.UUID) string {
	return videoID.String() + "/"
}

func EncodedObjectKey(videoID uuid.UUID, quality QualityName, file string) string {
	return path.Join(videoID.String(), string(quality), file)
}

func MasterPlaylistKey(videoID uuid.UUID) string {
	return path.Join(videoID.String(), MasterPlaylistName)
}

func ThumbnailKey(videoID uuid.UUID) string {
	return path.Join(videoID.String(), ThumbnailName)
}

// VariantURI is the master-playlist-relative path of a quality playlist.
func VariantURI(quality QualityName) string {
	return fmt.Sprintf("%s/%s", quality, VariantPlaylist)
}
