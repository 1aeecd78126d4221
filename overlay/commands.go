package overlay

import "fmt"

// Sequence is the editor's ordered working set of overlays, keyed by stable
// ids. Commands are replayed against it; Snapshot produces the flat ordered
// list the compositor consumes. List order is stacking order: later entries
// render above earlier ones.
type Sequence struct {
	items []Overlay
	index map[string]int
}

// NewSequence returns an empty overlay sequence.
func NewSequence() *Sequence {
	return &Sequence{index: make(map[string]int)}
}

// Command is an edit applied to a Sequence.
// The concrete types are Add, Update and Remove.
type Command interface {
	apply(*Sequence) error
}

// Add appends an overlay to the end of the sequence.
type Add struct {
	Overlay Overlay
}

// Update patches fields of an existing overlay in place, preserving its
// position in the stacking order. Nil fields are left untouched.
type Update struct {
	ID     string
	Fields Fields
}

// Remove deletes an overlay by id.
type Remove struct {
	ID string
}

// Fields holds the patchable subset of overlay fields. Pointer fields
// distinguish "not supplied" from zero values.
type Fields struct {
	Page       *int
	XPct       *float64
	YPct       *float64
	Text       *string  // text overlays only
	FontSizePt *float64 // text overlays only
	Color      *RGB     // text overlays only
	WidthPct   *float64 // image overlays only
	HeightPct  *float64 // image overlays only
}

// Apply replays one command. A failed command leaves the sequence unchanged.
func (s *Sequence) Apply(cmd Command) error {
	return cmd.apply(s)
}

// Replay applies commands in order, stopping at the first failure.
func (s *Sequence) Replay(cmds []Command) error {
	for i, cmd := range cmds {
		if err := cmd.apply(s); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	return nil
}

// Snapshot returns the current ordered overlay list. The slice is a copy;
// the overlays themselves are immutable values.
func (s *Sequence) Snapshot() []Overlay {
	out := make([]Overlay, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of overlays in the sequence.
func (s *Sequence) Len() int { return len(s.items) }

func (c Add) apply(s *Sequence) error {
	if c.Overlay == nil {
		return fmt.Errorf("add: nil overlay")
	}
	if err := c.Overlay.Validate(); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	id := c.Overlay.OverlayID()
	if _, exists := s.index[id]; exists {
		return fmt.Errorf("add: overlay %s already present", id)
	}
	s.index[id] = len(s.items)
	s.items = append(s.items, c.Overlay)
	return nil
}

func (c Update) apply(s *Sequence) error {
	pos, ok := s.index[c.ID]
	if !ok {
		return fmt.Errorf("update: no overlay %s", c.ID)
	}
	var patched Overlay
	switch ov := s.items[pos].(type) {
	case Text:
		patched = c.Fields.patchText(ov)
	case Image:
		patched = c.Fields.patchImage(ov)
	}
	if err := patched.Validate(); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	s.items[pos] = patched
	return nil
}

func (c Remove) apply(s *Sequence) error {
	pos, ok := s.index[c.ID]
	if !ok {
		return fmt.Errorf("remove: no overlay %s", c.ID)
	}
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	delete(s.index, c.ID)
	for id, i := range s.index {
		if i > pos {
			s.index[id] = i - 1
		}
	}
	return nil
}

func (f Fields) patchText(t Text) Text {
	if f.Page != nil {
		t.Page = *f.Page
	}
	if f.XPct != nil {
		t.XPct = *f.XPct
	}
	if f.YPct != nil {
		t.YPct = *f.YPct
	}
	if f.Text != nil {
		t.Text = *f.Text
	}
	if f.FontSizePt != nil {
		t.FontSizePt = *f.FontSizePt
	}
	if f.Color != nil {
		t.Color = *f.Color
	}
	return t
}

func (f Fields) patchImage(i Image) Image {
	if f.Page != nil {
		i.Page = *f.Page
	}
	if f.XPct != nil {
		i.XPct = *f.XPct
	}
	if f.YPct != nil {
		i.YPct = *f.YPct
	}
	if f.WidthPct != nil {
		i.WidthPct = *f.WidthPct
	}
	if f.HeightPct != nil {
		i.HeightPct = *f.HeightPct
	}
	return i
}
