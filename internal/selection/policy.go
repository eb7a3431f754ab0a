package selection

import (
	"sort"

	"github.com/eargollo/reclaim/internal/media"
)

// rank returns a copy of the group's media ordered best first: largest
// TotalSize, then widest. Remaining ties keep server order.
func rank(g media.ContentGroup) []media.MediaVariant {
	ranked := append([]media.MediaVariant(nil), g.Media...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].TotalSize(), ranked[j].TotalSize()
		if si != sj {
			return si > sj
		}
		return ranked[i].Width > ranked[j].Width
	})
	return ranked
}

// Keeper returns the variant the default policy keeps. ok is false for a
// group without media.
func Keeper(g media.ContentGroup) (media.MediaVariant, bool) {
	if len(g.Media) == 0 {
		return media.MediaVariant{}, false
	}
	return rank(g)[0], true
}

// SelectForRemoval returns every variant of g except the one to keep, in
// ranked order. A group with a single variant yields nothing. The group
// itself is not modified.
func SelectForRemoval(g media.ContentGroup) []media.MediaVariant {
	if len(g.Media) < 2 {
		return nil
	}
	return rank(g)[1:]
}

// IDs lists the ids of vs in order.
func IDs(vs []media.MediaVariant) []int64 {
	ids := make([]int64, len(vs))
	for i, v := range vs {
		ids[i] = v.ID
	}
	return ids
}
