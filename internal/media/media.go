// Package media defines the content groups and media variants exchanged with
// the duplicate backend.
package media

import "fmt"

// Content types reported by the backend.
const (
	TypeMovie   = "movie"
	TypeEpisode = "episode"
)

// FilePart is one file on disk backing a media variant.
type FilePart struct {
	ID         int64  `json:"id"`
	File       string `json:"file"`
	Size       int64  `json:"size"`
	Container  string `json:"container,omitempty"`
	Duration   int64  `json:"duration,omitempty"`
	Exists     bool   `json:"exists,omitempty"`
	Accessible bool   `json:"accessible,omitempty"`
}

// MediaVariant is one physical encoded copy of a title. ID is unique across
// the whole library, not just within its group.
type MediaVariant struct {
	ID              int64      `json:"id"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	Duration        int64      `json:"duration"`
	Bitrate         int        `json:"bitrate,omitempty"`
	Container       string     `json:"container,omitempty"`
	VideoCodec      string     `json:"videoCodec,omitempty"`
	VideoResolution string     `json:"videoResolution,omitempty"`
	VideoFrameRate  string     `json:"videoFrameRate,omitempty"`
	AudioCodec      string     `json:"audioCodec,omitempty"`
	AudioChannels   int        `json:"audioChannels,omitempty"`
	Parts           []FilePart `json:"parts"`
}

// TotalSize is the sum of the sizes of all parts, in bytes.
func (v MediaVariant) TotalSize() int64 {
	var total int64
	for _, p := range v.Parts {
		total += p.Size
	}
	return total
}

// Files returns the part paths in order.
func (v MediaVariant) Files() []string {
	files := make([]string, 0, len(v.Parts))
	for _, p := range v.Parts {
		files = append(files, p.File)
	}
	return files
}

// Resolution formats width x height, or "-" when unknown.
func (v MediaVariant) Resolution() string {
	if v.Width == 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// ContentGroup is one movie or episode the backend reports with several
// variants (duplicates) or with suspiciously short variants (samples).
// Media keeps server order.
type ContentGroup struct {
	Key           string         `json:"key"`
	Library       string         `json:"library"`
	Title         string         `json:"title"`
	ContentType   string         `json:"contentType,omitempty"`
	Year          int            `json:"year,omitempty"`
	SeriesTitle   string         `json:"seriesTitle,omitempty"`
	SeasonEpisode string         `json:"seasonEpisode,omitempty"`
	SeasonNumber  int            `json:"seasonNumber,omitempty"`
	GUID          string         `json:"guid,omitempty"`
	URL           string         `json:"url,omitempty"`
	ThumbURL      string         `json:"thumbUrl,omitempty"`
	Ignored       bool           `json:"ignored"`
	Media         []MediaVariant `json:"media"`
}

// DisplayTitle renders the group title the way the library shows it.
func (g ContentGroup) DisplayTitle() string {
	switch {
	case g.ContentType == TypeEpisode && g.SeriesTitle != "":
		return fmt.Sprintf("%s - %s %s", g.SeriesTitle, g.SeasonEpisode, g.Title)
	case g.Year > 0:
		return fmt.Sprintf("%s (%d)", g.Title, g.Year)
	default:
		return g.Title
	}
}

// TotalSize sums every variant in the group.
func (g ContentGroup) TotalSize() int64 {
	var total int64
	for _, m := range g.Media {
		total += m.TotalSize()
	}
	return total
}

// Variant finds a variant of g by id.
func (g ContentGroup) Variant(id int64) (MediaVariant, bool) {
	for _, m := range g.Media {
		if m.ID == id {
			return m, true
		}
	}
	return MediaVariant{}, false
}
