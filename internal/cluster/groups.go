package cluster

import (
	"fmt"
	"sort"

	"imagedupes/internal/models"
)

// KeepPolicy decides which member of a group survives a clean.
type KeepPolicy string

const (
	// KeepSeed keeps the cluster seed and removes the rest.
	KeepSeed KeepPolicy = "seed"
	// KeepBest keeps the member with the highest quality score.
	KeepBest KeepPolicy = "best"
)

// ParseKeepPolicy converts a flag value to a KeepPolicy.
func ParseKeepPolicy(s string) (KeepPolicy, error) {
	switch KeepPolicy(s) {
	case KeepSeed, KeepBest:
		return KeepPolicy(s), nil
	case "":
		return KeepSeed, nil
	default:
		return "", fmt.Errorf("unknown keep policy %q (want seed or best)", s)
	}
}

// Groups converts clusters to duplicate groups numbered from 1 in cluster
// order, skipping anything smaller than a pair. Images keep the cluster
// order; images missing from the lookup get a bare ImageInfo carrying only
// the path.
func Groups(clusters []Cluster, images map[string]*models.ImageInfo, policy KeepPolicy) []*models.DuplicateGroup {
	var groups []*models.DuplicateGroup
	groupID := 1

	for _, c := range clusters {
		if len(c) < 2 {
			continue
		}

		group := &models.DuplicateGroup{ID: groupID}
		groupID++
		for pos, path := range c {
			img, ok := images[path]
			if !ok {
				img = &models.ImageInfo{Path: path}
			}
			img.GroupID = group.ID
			img.Position = pos
			group.Images = append(group.Images, img)
		}

		selectKeepAndRemove(group, policy)
		groups = append(groups, group)
	}

	return groups
}

// selectKeepAndRemove determines which image to keep and which to remove
func selectKeepAndRemove(group *models.DuplicateGroup, policy KeepPolicy) {
	if len(group.Images) == 0 {
		return
	}

	if policy != KeepBest {
		group.Keep = group.Images[0]
		group.Remove = append([]*models.ImageInfo(nil), group.Images[1:]...)
		return
	}

	// Sort images by score (descending), then by file size (descending),
	// then by mod time (descending), then by path (ascending)
	sorted := make([]*models.ImageInfo, len(group.Images))
	copy(sorted, group.Images)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		if a.Score != b.Score {
			return a.Score > b.Score
		}
		// larger file carries more information
		if a.FileSize != b.FileSize {
			return a.FileSize > b.FileSize
		}
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.After(b.ModTime)
		}
		return a.Path < b.Path
	})

	group.Keep = sorted[0]
	group.Remove = sorted[1:]
}
