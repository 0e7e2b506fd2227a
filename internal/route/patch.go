package route

const MaxUndoDepth = 20

// MetadataPatch is a partial Metadata; nil fields are left untouched.
type MetadataPatch struct {
	Type      *string `json:"type,omitempty"`
	Name      *string `json:"name,omitempty"`
	Memo      *string `json:"memo,omitempty"`
	StartNote *string `json:"startNote,omitempty"`
	EndNote   *string `json:"endNote,omitempty"`
}

// SnapshotOf captures every field of m as a patch.
func SnapshotOf(m Metadata) MetadataPatch {
	return MetadataPatch{
		Type:      &m.Type,
		Name:      &m.Name,
		Memo:      &m.Memo,
		StartNote: &m.StartNote,
		EndNote:   &m.EndNote,
	}
}

func (p MetadataPatch) Apply(m Metadata) Metadata {
	if p.Type != nil {
		m.Type = *p.Type
	}
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Memo != nil {
		m.Memo = *p.Memo
	}
	if p.StartNote != nil {
		m.StartNote = *p.StartNote
	}
	if p.EndNote != nil {
		m.EndNote = *p.EndNote
	}
	return m
}

func (p MetadataPatch) IsEmpty() bool {
	return p.Type == nil && p.Name == nil && p.Memo == nil && p.StartNote == nil && p.EndNote == nil
}

func (p MetadataPatch) Clone() MetadataPatch {
	return MetadataPatch{
		Type:      clonePtr(p.Type),
		Name:      clonePtr(p.Name),
		Memo:      clonePtr(p.Memo),
		StartNote: clonePtr(p.StartNote),
		EndNote:   clonePtr(p.EndNote),
	}
}

type UndoState struct {
	Undo []MetadataPatch `json:"undo"`
	Redo []MetadataPatch `json:"redo"`
}

// Trim keeps only the most recent MaxUndoDepth entries of each stack.
func (u UndoState) Trim() UndoState {
	return UndoState{Undo: keepLast(u.Undo, MaxUndoDepth), Redo: keepLast(u.Redo, MaxUndoDepth)}
}

func (u UndoState) Clone() UndoState {
	out := UndoState{}
	for _, p := range u.Undo {
		out.Undo = append(out.Undo, p.Clone())
	}
	for _, p := range u.Redo {
		out.Redo = append(out.Redo, p.Clone())
	}
	return out
}

func keepLast(stack []MetadataPatch, n int) []MetadataPatch {
	if len(stack) <= n {
		return stack
	}
	return append([]MetadataPatch(nil), stack[len(stack)-n:]...)
}
