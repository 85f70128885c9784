package schemas

import "fmt"

// -- Browser State Schemas --

// PlaceholderScreenshot is the base64 PNG substituted for a real capture when
// a page has nothing to show (e.g. a fresh about:blank tab). It is a fixed
// 4x4 white image so downstream consumers that expect a visual always get one.
const PlaceholderScreenshot = `iVBORw0KGgoAAAANSUhEUgAAAAQAAAAECAIAAAAmkwkpAAAAFElEQVR4nGP8//8/AwwwMSAB3BwAlm4DBfIlvvkAAAAASUVORK5CYII=`

// TabInfo identifies one open browser tab at the moment a snapshot was taken.
// It is created fresh per snapshot by the producer and never mutated afterwards.
type TabInfo struct {
	PageID int    `json:"page_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	// ParentPageID references the tab that opened this one (a popup or a
	// cross-origin iframe host). Nil for top-level tabs. This is a relational
	// reference into the same snapshot's tab list, never an owning pointer;
	// resolve it through StateSnapshot.TabByID.
	ParentPageID *int `json:"parent_page_id"`
}

// ToDict returns the plain mapping form of the tab, the shape emitted by
// HistoryEntry.ToDict. A nil ParentPageID is emitted as an explicit null.
func (t TabInfo) ToDict() map[string]any {
	m := map[string]any{
		"page_id":        t.PageID,
		"url":            t.URL,
		"title":          t.Title,
		"parent_page_id": nil,
	}
	if t.ParentPageID != nil {
		m["parent_page_id"] = *t.ParentPageID
	}
	return m
}

// ValidateTabs checks the relational integrity of a snapshot's tab list:
// every parent_page_id must reference a different tab present in the same
// list. Producers call this at hand-off; the snapshot itself stays passive.
func ValidateTabs(tabs []TabInfo) error {
	ids := make(map[int]struct{}, len(tabs))
	for _, t := range tabs {
		ids[t.PageID] = struct{}{}
	}
	for _, t := range tabs {
		if t.ParentPageID == nil {
			continue
		}
		if *t.ParentPageID == t.PageID {
			return NewBrowserError(fmt.Sprintf("tab %d references itself as parent", t.PageID))
		}
		if _, ok := ids[*t.ParentPageID]; !ok {
			return NewBrowserError(fmt.Sprintf("tab %d references unknown parent tab %d", t.PageID, *t.ParentPageID))
		}
	}
	return nil
}

// PageGeometry describes the size and scroll state of the rendered document:
// the viewport, the full document, the current scroll offset, and how many
// pixels lie outside the viewport on each side. All values are measured by
// the producer; this model stores them verbatim and derives nothing at
// construction time.
//
// The relationship pixels_above + viewport_height + pixels_below ==
// page_height is expected from producers but deliberately not enforced here,
// so that consumers tolerate drift during dynamic page resizes.
type PageGeometry struct {
	ViewportWidth  int `json:"viewport_width"`
	ViewportHeight int `json:"viewport_height"`

	PageWidth  int `json:"page_width"`
	PageHeight int `json:"page_height"`

	ScrollX int `json:"scroll_x"`
	ScrollY int `json:"scroll_y"`

	// Overflow distances: content hidden outside the viewport on each side.
	PixelsAbove int `json:"pixels_above"`
	PixelsBelow int `json:"pixels_below"`
	PixelsLeft  int `json:"pixels_left"`
	PixelsRight int `json:"pixels_right"`
}

// PagesAbove reports how many viewport-heights of content sit above the
// current scroll position. Page statistics are computed on demand, not stored.
func (p *PageGeometry) PagesAbove() float64 {
	if p.ViewportHeight <= 0 {
		return 0
	}
	return float64(p.PixelsAbove) / float64(p.ViewportHeight)
}

// PagesBelow reports how many viewport-heights of content remain below.
func (p *PageGeometry) PagesBelow() float64 {
	if p.ViewportHeight <= 0 {
		return 0
	}
	return float64(p.PixelsBelow) / float64(p.ViewportHeight)
}

// TotalPages reports the document height in viewport-heights.
func (p *PageGeometry) TotalPages() float64 {
	if p.ViewportHeight <= 0 {
		return 0
	}
	return float64(p.PageHeight) / float64(p.ViewportHeight)
}

// ScrollPercentage reports vertical scroll progress in [0, 100]. A document
// that fits entirely in the viewport reports 0.
func (p *PageGeometry) ScrollPercentage() float64 {
	scrollable := p.PageHeight - p.ViewportHeight
	if scrollable <= 0 {
		return 0
	}
	pct := float64(p.PixelsAbove) / float64(scrollable) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// StateSnapshot is one coherent, self-describing observation of the browser,
// assembled by the producer and handed read-only to the agent each step. It
// owns its tab list and geometry by value; once constructed it is never
// mutated. A snapshot that needs a refreshed field is a new snapshot (Clone
// and reassign).
type StateSnapshot struct {
	// DOMState is the element tree plus selector map supplied by the
	// producer. Opaque to this model: no parsing or indexing happens here.
	DOMState

	URL   string    `json:"url"`
	Title string    `json:"title"`
	Tabs  []TabInfo `json:"tabs"`

	// Screenshot is inline base64-encoded image data, or empty if the
	// producer took no capture. Always self-contained bytes, never a path.
	Screenshot string `json:"screenshot,omitempty"`

	// PageInfo carries the full geometry when the producer could measure it.
	PageInfo *PageGeometry `json:"page_info,omitempty"`

	// Legacy scroll fields kept for consumers that predate PageInfo.
	PixelsAbove int `json:"pixels_above"`
	PixelsBelow int `json:"pixels_below"`

	// BrowserErrors accumulates non-fatal producer warnings (partial render,
	// script injection failure). Entries make the snapshot suspect, not invalid.
	BrowserErrors []string `json:"browser_errors,omitempty"`

	// IsPDFViewer and LoadingStatus are diagnostic side-channels the agent
	// should consult before trusting the element tree.
	IsPDFViewer   bool   `json:"is_pdf_viewer"`
	LoadingStatus string `json:"loading_status,omitempty"`
}

// NewStateSnapshot assembles a snapshot from the producer's DOM projection
// and tab list. The tab slice is copied so later mutation of the caller's
// slice cannot reach the snapshot. Optional fields (screenshot, geometry,
// diagnostics) are set on the returned value before it is handed to the
// agent, after which it must be treated as immutable.
func NewStateSnapshot(dom DOMState, url, title string, tabs []TabInfo) *StateSnapshot {
	owned := make([]TabInfo, len(tabs))
	copy(owned, tabs)
	return &StateSnapshot{
		DOMState: dom,
		URL:      url,
		Title:    title,
		Tabs:     owned,
	}
}

// TabByID looks up a tab in this snapshot's tab list.
func (s *StateSnapshot) TabByID(pageID int) (TabInfo, bool) {
	for _, t := range s.Tabs {
		if t.PageID == pageID {
			return t, true
		}
	}
	return TabInfo{}, false
}

// ParentOf resolves a tab's parent reference against this snapshot's tab
// list. Returns false for top-level tabs and for dangling references.
func (s *StateSnapshot) ParentOf(tab TabInfo) (TabInfo, bool) {
	if tab.ParentPageID == nil {
		return TabInfo{}, false
	}
	return s.TabByID(*tab.ParentPageID)
}

// Clone returns a deep copy of the value-owned parts of the snapshot (tabs,
// geometry, error list). The DOM projection is shared: it belongs to the
// producer and is already treated as read-only.
func (s *StateSnapshot) Clone() *StateSnapshot {
	out := *s
	out.Tabs = make([]TabInfo, len(s.Tabs))
	copy(out.Tabs, s.Tabs)
	if s.PageInfo != nil {
		geo := *s.PageInfo
		out.PageInfo = &geo
	}
	if s.BrowserErrors != nil {
		out.BrowserErrors = make([]string, len(s.BrowserErrors))
		copy(out.BrowserErrors, s.BrowserErrors)
	}
	return &out
}
