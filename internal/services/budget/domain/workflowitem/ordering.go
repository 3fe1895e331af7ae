package workflowitem

// Sort places the items named in ordering first, in that order, followed by
// the remaining items in their original order. Unknown ids in ordering are
// ignored.
func Sort(items []Workflowitem, ordering []string) []Workflowitem {
	byID := make(map[string]int, len(items))
	for i, item := range items {
		byID[item.ID] = i
	}
	placed := make([]bool, len(items))
	out := make([]Workflowitem, 0, len(items))
	for _, id := range ordering {
		i, ok := byID[id]
		if !ok || placed[i] {
			continue
		}
		placed[i] = true
		out = append(out, items[i])
	}
	for i, item := range items {
		if !placed[i] {
			out = append(out, item)
		}
	}
	return out
}
