package schemas

import (
	"bytes"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	json "github.com/json-iterator/go"
)

// SelectorMap indexes the interactive elements of a DOM projection by their
// highlight index, the small integer the agent uses to name a click or type
// target. It is an index over the element tree, not a second copy of it.
type SelectorMap map[int]*ElementNode

// DOMState is the producer's projection of the page DOM: the element tree
// plus the selector map built over it. This model treats both as opaque
// inputs; it never parses HTML or walks the CDP document itself.
//
// Neither field serializes with the snapshot envelope. The tree carries
// parent back-references and the map duplicates subtree pointers, so the
// durable form of an element is always a DOMHistoryElement descriptor.
type DOMState struct {
	ElementTree *ElementNode `json:"-"`
	SelectorMap SelectorMap  `json:"-"`
}

// ElementNode is one node of the DOM projection. It stores just enough
// identity for selector maps and for converting an element into its durable
// history descriptor.
type ElementNode struct {
	TagName    string            `json:"tag_name"`
	XPath      string            `json:"xpath"`
	Attributes map[string]string `json:"attributes,omitempty"`

	Children []*ElementNode `json:"children,omitempty"`
	Parent   *ElementNode   `json:"-"`

	// HighlightIndex is set only on elements present in the selector map.
	HighlightIndex *int `json:"highlight_index,omitempty"`

	IsVisible     bool `json:"is_visible,omitempty"`
	IsInteractive bool `json:"is_interactive,omitempty"`
	IsShadowRoot  bool `json:"shadow_root,omitempty"`

	// BackendNodeID ties the node back to the devtools document it came
	// from. Valid only for the lifetime of that document.
	BackendNodeID cdp.BackendNodeID `json:"backend_node_id,omitempty"`
}

// ParentBranchPath returns the tag names from the root down to (and
// including) this node. It is the ancestry fingerprint carried by
// DOMHistoryElement so elements can be re-matched across page loads.
func (n *ElementNode) ParentBranchPath() []string {
	var rev []string
	for cur := n; cur != nil; cur = cur.Parent {
		rev = append(rev, cur.TagName)
	}
	path := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}

// HistoryElement converts a live node into its durable descriptor. The
// descriptor survives the node: it holds copies, never pointers into the tree.
func (n *ElementNode) HistoryElement() *DOMHistoryElement {
	attrs := make(map[string]string, len(n.Attributes))
	for k, v := range n.Attributes {
		attrs[k] = v
	}
	var hi *int
	if n.HighlightIndex != nil {
		v := *n.HighlightIndex
		hi = &v
	}
	return &DOMHistoryElement{
		TagName:                n.TagName,
		XPath:                  n.XPath,
		HighlightIndex:         hi,
		EntireParentBranchPath: n.ParentBranchPath(),
		Attributes:             attrs,
		ShadowRoot:             n.IsShadowRoot,
	}
}

// Coordinates is a point in page or viewport space.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CoordinateSet captures an element's bounding box as its four corners plus
// center, with the box dimensions.
type CoordinateSet struct {
	TopLeft     Coordinates `json:"top_left"`
	TopRight    Coordinates `json:"top_right"`
	BottomLeft  Coordinates `json:"bottom_left"`
	BottomRight Coordinates `json:"bottom_right"`
	Center      Coordinates `json:"center"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
}

// ViewportInfo records the viewport the coordinates were measured in.
type ViewportInfo struct {
	ScrollX int `json:"scroll_x"`
	ScrollY int `json:"scroll_y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// DOMHistoryElement is the durable descriptor of an element the agent
// interacted with: an XPath and attribute fingerprint that stays meaningful
// after the live DOM node is gone. It holds no pointers into any tree.
type DOMHistoryElement struct {
	TagName                string            `json:"tag_name"`
	XPath                  string            `json:"xpath"`
	HighlightIndex         *int              `json:"highlight_index"`
	EntireParentBranchPath []string          `json:"entire_parent_branch_path"`
	Attributes             map[string]string `json:"attributes"`
	ShadowRoot             bool              `json:"shadow_root"`

	// Geometry captured at interaction time. Kept for in-process matching;
	// deliberately outside the serialized contract, which pins the six
	// fields above.
	CSSSelector         string         `json:"-"`
	PageCoordinates     *CoordinateSet `json:"-"`
	ViewportCoordinates *CoordinateSet `json:"-"`
	ViewportInfo        *ViewportInfo  `json:"-"`
}

// ToDict returns the canonical mapping form of the descriptor. The key set
// is fixed; consumers on the other side of the trace file depend on exactly
// these six appearing, with explicit nulls rather than omissions.
func (e *DOMHistoryElement) ToDict() map[string]any {
	var hi any
	if e.HighlightIndex != nil {
		hi = *e.HighlightIndex
	}
	branch := e.EntireParentBranchPath
	if branch == nil {
		branch = []string{}
	}
	attrs := e.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return map[string]any{
		"tag_name":                  e.TagName,
		"xpath":                     e.XPath,
		"highlight_index":           hi,
		"entire_parent_branch_path": branch,
		"attributes":                attrs,
		"shadow_root":               e.ShadowRoot,
	}
}

// ElementSlot records the durable outcome of resolving one action target:
// either a DOMHistoryElement or an explicit absence. A step that performed
// two actions always yields two slots, so action i lines up with slot i even
// when action i touched no element. The zero value is the unresolved slot.
type ElementSlot struct {
	el *DOMHistoryElement
}

// ResolvedSlot wraps a descriptor in a slot. A nil descriptor normalizes to
// the unresolved slot.
func ResolvedSlot(el *DOMHistoryElement) ElementSlot {
	return ElementSlot{el: el}
}

// UnresolvedSlot is the explicit "this action touched no element" marker.
func UnresolvedSlot() ElementSlot {
	return ElementSlot{}
}

// Element returns the descriptor and whether the slot resolved.
func (s ElementSlot) Element() (*DOMHistoryElement, bool) {
	return s.el, s.el != nil
}

// MarshalJSON emits the descriptor's canonical dict, or null for an
// unresolved slot. Null survives in place; it is never dropped from the
// surrounding array.
func (s ElementSlot) MarshalJSON() ([]byte, error) {
	if s.el == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.el.ToDict())
}

// UnmarshalJSON accepts the object-or-null wire form.
func (s *ElementSlot) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		s.el = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("element slot: %w", err)
	}
	el, err := historyElementFromDict(raw)
	if err != nil {
		return fmt.Errorf("element slot: %w", err)
	}
	s.el = el
	return nil
}

func isJSONNull(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "null"
}

// ElementResolver converts a live element from the snapshot's DOM projection
// into its durable descriptor. The history layer depends on this seam so the
// conversion strategy (plain copy, coordinate enrichment, fuzzy matching)
// stays a producer concern.
type ElementResolver interface {
	Resolve(node *ElementNode) *DOMHistoryElement
}

// ResolverFunc adapts a function to the ElementResolver interface.
type ResolverFunc func(node *ElementNode) *DOMHistoryElement

// Resolve implements ElementResolver.
func (f ResolverFunc) Resolve(node *ElementNode) *DOMHistoryElement {
	return f(node)
}
