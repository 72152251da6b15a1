package inference

import "fmt"

// Labels maps class ids to human-readable names by position.
type Labels []string

// Name returns the label for classID, or "class<id>" when it is unknown.
func (l Labels) Name(classID int) string {
	if classID >= 0 && classID < len(l) {
		return l[classID]
	}
	return fmt.Sprintf("class%d", classID)
}
