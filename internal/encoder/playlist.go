package encoder

import (
	"fmt"
	"strings"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
)

// MasterPlaylist renders the top-level HLS manifest for the given renditions, highest first.
func MasterPlaylist(profiles []models.QualityProfile) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, p := range profiles {
		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s,NAME=\"%s\"\n", p.Bandwidth(), p.Resolution(), p.Name))
		b.WriteString(models.VariantURI(p.Name) + "\n")
	}
	return b.String()
}
