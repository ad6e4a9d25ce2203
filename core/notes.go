package core

import "strings"

// CommentMarker starts unsynced comment text inside local notes.
const CommentMarker = "---COMMENT---"

// Metadata line labels written into local notes.
const (
	NotesLabelMembers   = "**成员:**"
	NotesLabelTasklists = "**任务列表:**"
	NotesLabelDue       = "**截止时间:**"
	NotesLabelSubtasks  = "**子任务数:**"
)

var notesMetadataLabels = []string{
	NotesLabelMembers,
	NotesLabelTasklists,
	NotesLabelDue,
	NotesLabelSubtasks,
	CommentMarker,
}

// ExtractDescription derives the remote description from local notes. The
// comment segment is cut and metadata lines are dropped.
func ExtractDescription(notes string) string {
	if idx := strings.Index(notes, CommentMarker); idx >= 0 {
		notes = notes[:idx]
	}
	lines := strings.Split(notes, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if isMetadataLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ExtractComment returns the text after the last comment marker.
func ExtractComment(notes string) (string, bool) {
	idx := strings.LastIndex(notes, CommentMarker)
	if idx < 0 {
		return "", false
	}
	comment := strings.TrimSpace(notes[idx+len(CommentMarker):])
	return comment, comment != ""
}

func HasComment(notes string) bool {
	return strings.Contains(notes, CommentMarker)
}

func isMetadataLine(line string) bool {
	for _, label := range notesMetadataLabels {
		if strings.HasPrefix(line, label) {
			return true
		}
	}
	return false
}
