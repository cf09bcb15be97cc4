package policy

import (
	"regexp"
	"sort"
)

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

	assetPattern = regexp.MustCompile(`(?i)https?://[^\s<>"]+\.(?:png|jpe?g|gif|svg|webp|mp4|mov|webm)`)
)

// AttachmentDiff is the pure set difference between the assets currently
// referenced by a body and the previously recorded attachment map.
type AttachmentDiff struct {
	// ToDelete maps asset URL to the downstream attachment id to remove.
	ToDelete map[string]string
	// ToKeep is the surviving portion of the previous map.
	ToKeep map[string]string
	// ToCreate lists asset URLs that have no downstream attachment yet.
	ToCreate []string
}

// ExtractAssets returns the image/video URLs referenced in a body,
// deduplicated, in stable order.
func ExtractAssets(body string) []string {
	seen := make(map[string]struct{})
	var assets []string
	for _, u := range assetPattern.FindAllString(body, -1) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		assets = append(assets, u)
	}
	return assets
}

// DiffAttachments computes what the side-effecting layer must delete, keep,
// and create so that the persisted map afterwards is exactly the current set,
// never a superset that still contains deleted entries.
func DiffAttachments(current []string, previous map[string]string) AttachmentDiff {
	diff := AttachmentDiff{
		ToDelete: make(map[string]string),
		ToKeep:   make(map[string]string),
	}

	currentSet := make(map[string]struct{}, len(current))
	for _, u := range current {
		currentSet[u] = struct{}{}
	}

	for u, id := range previous {
		if _, ok := currentSet[u]; ok {
			diff.ToKeep[u] = id
		} else {
			diff.ToDelete[u] = id
		}
	}
	for _, u := range current {
		if _, ok := previous[u]; !ok {
			diff.ToCreate = append(diff.ToCreate, u)
		}
	}
	sort.Strings(diff.ToCreate)
	return diff
}
