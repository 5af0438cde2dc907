package scheduler

import (
	"github.com/travigo/railcontrol/pkg/ctdf"
)

// partition splits the ordered trains into groups that share no section and
// no platform. Each group keeps the relative order of the input, and groups
// are returned in order of their first train.
func partition(order []*ctdf.Train) [][]*ctdf.Train {
	parent := map[string]string{}

	var find func(key string) string
	find = func(key string) string {
		root, ok := parent[key]
		if !ok {
			parent[key] = key
			return key
		}
		if root == key {
			return key
		}
		root = find(root)
		parent[key] = root
		return root
	}

	union := func(a string, b string) {
		rootA, rootB := find(a), find(b)
		if rootA != rootB {
			parent[rootB] = rootA
		}
	}

	for _, train := range order {
		keys := resourceKeys(train)
		for _, key := range keys[1:] {
			union(keys[0], key)
		}
	}

	index := map[string]int{}
	var components [][]*ctdf.Train
	for _, train := range order {
		root := find(resourceKeys(train)[0])
		i, ok := index[root]
		if !ok {
			i = len(components)
			index[root] = i
			components = append(components, nil)
		}
		components[i] = append(components[i], train)
	}

	return components
}

func resourceKeys(train *ctdf.Train) []string {
	keys := make([]string, 0, len(train.Route))
	for i, sectionID := range train.Route {
		keys = append(keys, "section/"+sectionID)
		station := train.ArrivalStation(i)
		if platform, ok := train.PlatformAt(station); ok {
			keys = append(keys, platformKey(station, platform))
		}
	}
	return keys
}

func platformKey(stationID string, platform string) string {
	return "platform/" + stationID + "/" + platform
}
