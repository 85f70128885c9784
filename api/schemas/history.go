package schemas

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// HistoryEntry is the durable projection of one agent step: which page it was
// on, which tabs existed, which elements it acted on, and where the step's
// screenshot lives on disk. Entries are what trace files, archives and
// replays are made of; they deliberately drop the DOM tree and inline
// screenshot bytes the live snapshot carries.
//
// The struct's JSON form and ToDict emit the same five keys, so an entry can
// be round-tripped either way.
type HistoryEntry struct {
	URL   string    `json:"url"`
	Title string    `json:"title"`
	Tabs  []TabInfo `json:"tabs"`

	// InteractedElements has exactly one slot per action taken during the
	// step, unresolved slots included, so slot i always describes action i.
	InteractedElements []ElementSlot `json:"interacted_element"`

	// ScreenshotPath points at the step's capture on disk. Nil means the
	// step recorded none; it marshals as an explicit null, never disappears.
	ScreenshotPath *string `json:"screenshot_path"`
}

// NewHistoryEntry projects a snapshot into its durable form. Tabs and slots
// are copied, so the entry shares nothing with the snapshot or the caller's
// slot slice. An empty screenshotPath records absence.
func NewHistoryEntry(snap *StateSnapshot, slots []ElementSlot, screenshotPath string) *HistoryEntry {
	entry := &HistoryEntry{
		URL:                snap.URL,
		Title:              snap.Title,
		Tabs:               make([]TabInfo, len(snap.Tabs)),
		InteractedElements: make([]ElementSlot, len(slots)),
	}
	copy(entry.Tabs, snap.Tabs)
	copy(entry.InteractedElements, slots)
	if screenshotPath != "" {
		p := screenshotPath
		entry.ScreenshotPath = &p
	}
	return entry
}

// GetScreenshot loads the entry's capture from disk and returns it base64
// encoded. Absence is an expected state, not an error: a nil path, a missing
// file, an unreadable file and non-image bytes all report false. Histories
// outlive screenshot retention, so readers must keep working after the files
// are pruned.
func (h *HistoryEntry) GetScreenshot() (string, bool) {
	if h.ScreenshotPath == nil || *h.ScreenshotPath == "" {
		return "", false
	}
	data, err := os.ReadFile(*h.ScreenshotPath)
	if err != nil || len(data) == 0 {
		return "", false
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(data), true
}

// ToDict returns the canonical mapping form of the entry. Key set and
// null-vs-omit behavior are a compatibility contract with every consumer of
// trace files; changing either breaks recorded sessions.
func (h *HistoryEntry) ToDict() map[string]any {
	tabs := make([]map[string]any, 0, len(h.Tabs))
	for _, t := range h.Tabs {
		tabs = append(tabs, t.ToDict())
	}
	slots := make([]any, 0, len(h.InteractedElements))
	for _, s := range h.InteractedElements {
		if el, ok := s.Element(); ok {
			slots = append(slots, el.ToDict())
		} else {
			slots = append(slots, nil)
		}
	}
	var path any
	if h.ScreenshotPath != nil && *h.ScreenshotPath != "" {
		path = *h.ScreenshotPath
	}
	return map[string]any{
		"tabs":               tabs,
		"screenshot_path":    path,
		"interacted_element": slots,
		"url":                h.URL,
		"title":              h.Title,
	}
}

// HistoryEntryFromDict is the lossless inverse of ToDict. It accepts the
// numeric sloppiness of generic JSON decoding (float64, json.Number) and
// rejects structural mismatches.
func HistoryEntryFromDict(d map[string]any) (*HistoryEntry, error) {
	entry := &HistoryEntry{
		Tabs:               []TabInfo{},
		InteractedElements: []ElementSlot{},
	}

	var err error
	if entry.URL, err = dictString(d, "url"); err != nil {
		return nil, err
	}
	if entry.Title, err = dictString(d, "title"); err != nil {
		return nil, err
	}

	if raw, ok := d["screenshot_path"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("history entry: screenshot_path is %T, want string or null", raw)
		}
		if s != "" {
			entry.ScreenshotPath = &s
		}
	}

	if raw, ok := d["tabs"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("history entry: tabs is %T, want array", raw)
		}
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("history entry: tabs[%d] is %T, want object", i, item)
			}
			tab, err := tabFromDict(m)
			if err != nil {
				return nil, fmt.Errorf("history entry: tabs[%d]: %w", i, err)
			}
			entry.Tabs = append(entry.Tabs, tab)
		}
	}

	if raw, ok := d["interacted_element"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("history entry: interacted_element is %T, want array", raw)
		}
		for i, item := range list {
			if item == nil {
				entry.InteractedElements = append(entry.InteractedElements, UnresolvedSlot())
				continue
			}
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("history entry: interacted_element[%d] is %T, want object or null", i, item)
			}
			el, err := historyElementFromDict(m)
			if err != nil {
				return nil, fmt.Errorf("history entry: interacted_element[%d]: %w", i, err)
			}
			entry.InteractedElements = append(entry.InteractedElements, ResolvedSlot(el))
		}
	}

	return entry, nil
}

func tabFromDict(d map[string]any) (TabInfo, error) {
	var tab TabInfo
	id, ok, err := dictInt(d, "page_id")
	if err != nil {
		return tab, err
	}
	if !ok {
		return tab, fmt.Errorf("missing page_id")
	}
	tab.PageID = id
	if tab.URL, err = dictString(d, "url"); err != nil {
		return tab, err
	}
	if tab.Title, err = dictString(d, "title"); err != nil {
		return tab, err
	}
	parent, ok, err := dictInt(d, "parent_page_id")
	if err != nil {
		return tab, err
	}
	if ok {
		tab.ParentPageID = &parent
	}
	return tab, nil
}

func historyElementFromDict(d map[string]any) (*DOMHistoryElement, error) {
	el := &DOMHistoryElement{
		EntireParentBranchPath: []string{},
		Attributes:             map[string]string{},
	}

	var err error
	if el.TagName, err = dictString(d, "tag_name"); err != nil {
		return nil, err
	}
	if el.XPath, err = dictString(d, "xpath"); err != nil {
		return nil, err
	}

	hi, ok, err := dictInt(d, "highlight_index")
	if err != nil {
		return nil, err
	}
	if ok {
		el.HighlightIndex = &hi
	}

	if raw, ok := d["entire_parent_branch_path"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("entire_parent_branch_path is %T, want array", raw)
		}
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("entire_parent_branch_path[%d] is %T, want string", i, item)
			}
			el.EntireParentBranchPath = append(el.EntireParentBranchPath, s)
		}
	}

	if raw, ok := d["attributes"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("attributes is %T, want object", raw)
		}
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("attributes[%q] is %T, want string", k, v)
			}
			el.Attributes[k] = s
		}
	}

	if raw, ok := d["shadow_root"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("shadow_root is %T, want bool", raw)
		}
		el.ShadowRoot = b
	}

	return el, nil
}

// dictString reads an optional string key; a missing key or explicit null is
// the empty string.
func dictString(d map[string]any, key string) (string, error) {
	raw, ok := d[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s is %T, want string", key, raw)
	}
	return s, nil
}

// dictInt reads an optional integer key, tolerating every numeric shape a
// JSON decoder may hand back. The second return reports presence.
func dictInt(d map[string]any, key string) (int, bool, error) {
	raw, ok := d[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int32:
		return int(v), true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	case float32:
		return int(v), true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", key, err)
		}
		return int(n), true, nil
	default:
		return 0, false, fmt.Errorf("%s is %T, want number", key, raw)
	}
}
