package plan

import (
	"regexp"
	"strconv"
)

var integerRegex = regexp.MustCompile(`\d+`)

// LessonNumber returns the largest integer embedded in a lesson label, "5-6" covers
// lessons 5 through 6 and yields 6. Labels without digits have no lesson number.
func LessonNumber(label string) (int, bool) {
	matches := integerRegex.FindAllString(label, -1)
	if len(matches) == 0 {
		return 0, false
	}
	max := -1
	for _, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			// only overflow can fail here
			continue
		}
		if n > max {
			max = n
		}
	}
	if max < 0 {
		return 0, false
	}
	return max, true
}
