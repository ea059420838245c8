// SPDX-License-Identifier: MIT

package vmix

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ManuGH/vmixd/internal/state"
)

// The vMix status document. Only the fields that populate the state model
// are decoded; everything else in the document is ignored.
type xmlDocument struct {
	XMLName xml.Name   `xml:"vmix"`
	Version string     `xml:"version"`
	Edition string     `xml:"edition"`
	Preset  string     `xml:"preset"`
	Inputs  []xmlInput `xml:"inputs>input"`
	Active  int        `xml:"active"`
	Preview int        `xml:"preview"`
}

type xmlInput struct {
	Key    string       `xml:"key,attr"`
	Number int          `xml:"number,attr"`
	Type   string       `xml:"type,attr"`
	Title  string       `xml:"title,attr"`
	State  string       `xml:"state,attr"`
	Items  []xmlListItem `xml:"list>item"`
	Text   string       `xml:",chardata"`
}

type xmlListItem struct {
	Selected bool   `xml:"selected,attr"`
	Enabled  bool   `xml:"enabled,attr"`
	Value    string `xml:",chardata"`
}

const videoListType = "VideoList"

// parseStatus decodes a status document into a snapshot for host.
// Sequence number assignment is the caller's concern.
func parseStatus(host string, r io.Reader) (*state.Snapshot, error) {
	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode status document: %w", err)
	}

	snap := &state.Snapshot{
		Host:         host,
		Version:      strings.TrimSpace(doc.Version),
		Edition:      strings.TrimSpace(doc.Edition),
		Preset:       strings.TrimSpace(doc.Preset),
		ActiveInput:  doc.Active,
		PreviewInput: doc.Preview,
	}

	seen := make(map[string]struct{}, len(doc.Inputs))
	for _, in := range doc.Inputs {
		key := in.Key
		if key == "" {
			return nil, fmt.Errorf("input number %d has no key", in.Number)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate input key %q", key)
		}
		seen[key] = struct{}{}

		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = strings.TrimSpace(in.Text)
		}

		snap.Inputs = append(snap.Inputs, state.Input{
			Key:    key,
			Number: in.Number,
			Title:  title,
			Type:   in.Type,
			State:  in.State,
		})

		if in.Type == videoListType {
			snap.VideoLists = append(snap.VideoLists, buildVideoList(in, title))
		}
	}
	return snap, nil
}

// buildVideoList converts a VideoList input, enforcing the selection
// invariant: at most one selected item, SelectedIndex pointing at it.
func buildVideoList(in xmlInput, title string) state.VideoListInput {
	vl := state.VideoListInput{
		Key:    in.Key,
		Number: in.Number,
		Title:  title,
		Type:   in.Type,
		State:  in.State,
	}
	for i, item := range in.Items {
		selected := item.Selected && vl.SelectedIndex == nil
		if selected {
			idx := i
			vl.SelectedIndex = &idx
		}
		vl.Items = append(vl.Items, state.VideoListItem{
			Key:      fmt.Sprintf("%s:%d", in.Key, i),
			Number:   i + 1,
			Title:    itemTitle(item.Value),
			Type:     "VideoListItem",
			State:    in.State,
			Selected: selected,
			Enabled:  item.Enabled,
		})
	}
	return vl
}

// itemTitle reduces a list entry, usually a file path, to a display name.
func itemTitle(raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.ReplaceAll(v, `\`, "/")
	if base := path.Base(v); base != "." && base != "/" {
		return base
	}
	return v
}
