// SPDX-License-Identifier: MIT

package state

// Subscribers detect change through reference inequality, so every emitted
// payload must be a fresh object graph. Clone helpers below are the single
// place that guarantee no nested reference from a cached snapshot leaks
// into an emitted payload.

// CloneInputs returns a fresh copy of the input list.
func CloneInputs(in []Input) []Input {
	if in == nil {
		return nil
	}
	out := make([]Input, len(in))
	copy(out, in)
	return out
}

// CloneVideoLists returns a fresh object graph: new outer slice, new item
// slices, new SelectedIndex pointers.
func CloneVideoLists(in []VideoListInput) []VideoListInput {
	if in == nil {
		return nil
	}
	out := make([]VideoListInput, len(in))
	for i, vl := range in {
		out[i] = vl.Clone()
	}
	return out
}

// Clone returns a deep copy of the video list input.
func (v VideoListInput) Clone() VideoListInput {
	c := v
	if v.Items != nil {
		c.Items = make([]VideoListItem, len(v.Items))
		copy(c.Items, v.Items)
	}
	if v.SelectedIndex != nil {
		idx := *v.SelectedIndex
		c.SelectedIndex = &idx
	}
	return c
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Inputs = CloneInputs(s.Inputs)
	c.VideoLists = CloneVideoLists(s.VideoLists)
	return &c
}
