package util

func RemoveDuplicateStrings(strings []string, ignoreList []string) []string {
	presentStrings := make(map[string]bool)
	var list []string

	for _, ignoreString := range ignoreList {
		presentStrings[ignoreString] = true
	}

	for _, item := range strings {
		if _, value := presentStrings[item]; !value && item != "" {
			presentStrings[item] = true
			list = append(list, item)
		}
	}
	return list
}

// DuplicateStrings returns every value that appears more than once, in order
// of its second appearance.
func DuplicateStrings(strings []string) []string {
	seen := make(map[string]int)
	var duplicates []string

	for _, item := range strings {
		seen[item]++
		if seen[item] == 2 {
			duplicates = append(duplicates, item)
		}
	}
	return duplicates
}
