package cleanup

import (
	"path/filepath"

	"herald/internal/queue"
)

// Referenced collects the rendition paths of posts that may still publish.
// Posted and failed posts release their renditions.
func Referenced(posts []queue.Post) map[string]struct{} {
	keep := make(map[string]struct{})
	for _, p := range posts {
		if p.Status.IsTerminal() {
			continue
		}
		for _, path := range p.AdaptedAssets {
			if path != "" {
				keep[filepath.Clean(path)] = struct{}{}
			}
		}
	}
	return keep
}
