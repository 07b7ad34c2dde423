package cluster

import "imagedupes/internal/fingerprint"

func greedy(table *fingerprint.Table, threshold float64) []Cluster {
	ids, hashes := tableHashes(table)

	// assigned[i] is set once ids[i] has been a seed or joined a cluster
	assigned := make([]bool, len(ids))
	var clusters []Cluster

	for i := range ids {
		if assigned[i] {
			continue
		}

		members := []int{i}
		for j := range ids {
			if j == i || assigned[j] {
				continue
			}
			if fingerprint.Similar(hashes[i], hashes[j], threshold) {
				members = append(members, j)
			}
		}

		if len(members) < 2 {
			assigned[i] = true
			continue
		}

		c := make(Cluster, len(members))
		for k, m := range members {
			assigned[m] = true
			c[k] = ids[m]
		}
		clusters = append(clusters, c)
	}

	return clusters
}
