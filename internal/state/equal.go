// SPDX-License-Identifier: MIT

package state

// Content comparison for reconciliation. Comparison is by value, never by
// reference: two independently parsed snapshots with identical content
// must compare equal so unchanged polls can be suppressed.

// EqualInputs reports whether two input lists have identical content.
func EqualInputs(a, b []Input) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EqualVideoLists reports whether two video list collections have
// identical content, including item order and selection.
func EqualVideoLists(a, b []VideoListInput) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Equal reports content equality with another video list input.
func (v VideoListInput) Equal(o VideoListInput) bool {
	if v.Key != o.Key || v.Number != o.Number || v.Title != o.Title ||
		v.Type != o.Type || v.State != o.State {
		return false
	}
	if (v.SelectedIndex == nil) != (o.SelectedIndex == nil) {
		return false
	}
	if v.SelectedIndex != nil && *v.SelectedIndex != *o.SelectedIndex {
		return false
	}
	if len(v.Items) != len(o.Items) {
		return false
	}
	for i := range v.Items {
		if v.Items[i] != o.Items[i] {
			return false
		}
	}
	return true
}

// StatusEqual reports whether the scalar status fields of two snapshots
// match. Inputs and video lists are compared separately.
func StatusEqual(a, b *Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Version == b.Version &&
		a.Edition == b.Edition &&
		a.Preset == b.Preset &&
		a.ActiveInput == b.ActiveInput &&
		a.PreviewInput == b.PreviewInput
}
