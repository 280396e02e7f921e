package workflow

// AppendStageNote returns notes extended by n. The result never shares a
// backing array with notes, so entries already handed out stay untouched.
func AppendStageNote(notes []StageNote, n StageNote) []StageNote {
	out := make([]StageNote, len(notes), len(notes)+1)
	copy(out, notes)
	return append(out, n)
}
