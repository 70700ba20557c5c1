package service

// Plurality returns the most frequent tag in answers. Ties go to the tag
// that appears first in answer order, so [B A A B] yields B. It returns ""
// for no answers.
func Plurality(answers []string) string {
	counts := make(map[string]int, len(answers))
	top := 0
	for _, tag := range answers {
		counts[tag]++
		if counts[tag] > top {
			top = counts[tag]
		}
	}
	for _, tag := range answers {
		if counts[tag] == top {
			return tag
		}
	}
	return ""
}
