package schemas_test

import (
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/statetrace/api/schemas"
)

// buildTestTree assembles a small projection:
//
//	html > body > form > button[highlight=7]
//
// with parent pointers wired and the button indexed in the selector map.
func buildTestTree() (schemas.DOMState, *schemas.ElementNode) {
	button := &schemas.ElementNode{
		TagName:        "button",
		XPath:          "/html/body/form/button[1]",
		Attributes:     map[string]string{"type": "submit", "id": "go"},
		HighlightIndex: intPtr(7),
		IsVisible:      true,
		IsInteractive:  true,
	}
	form := &schemas.ElementNode{
		TagName:  "form",
		XPath:    "/html/body/form",
		Children: []*schemas.ElementNode{button},
	}
	button.Parent = form
	body := &schemas.ElementNode{
		TagName:  "body",
		XPath:    "/html/body",
		Children: []*schemas.ElementNode{form},
	}
	form.Parent = body
	root := &schemas.ElementNode{
		TagName:  "html",
		XPath:    "/html",
		Children: []*schemas.ElementNode{body},
	}
	body.Parent = root

	return schemas.DOMState{
		ElementTree: root,
		SelectorMap: schemas.SelectorMap{7: button},
	}, button
}

func TestParentBranchPath(t *testing.T) {
	t.Parallel()
	_, button := buildTestTree()
	assert.Equal(t, []string{"html", "body", "form", "button"}, button.ParentBranchPath())

	orphan := &schemas.ElementNode{TagName: "div"}
	assert.Equal(t, []string{"div"}, orphan.ParentBranchPath())
}

func TestHistoryElementIsDetachedCopy(t *testing.T) {
	t.Parallel()
	_, button := buildTestTree()
	el := button.HistoryElement()

	require.NotNil(t, el)
	assert.Equal(t, "button", el.TagName)
	assert.Equal(t, "/html/body/form/button[1]", el.XPath)
	require.NotNil(t, el.HighlightIndex)
	assert.Equal(t, 7, *el.HighlightIndex)
	assert.Equal(t, []string{"html", "body", "form", "button"}, el.EntireParentBranchPath)

	// The descriptor must survive mutation of the live node.
	button.Attributes["id"] = "changed"
	*button.HighlightIndex = 99
	assert.Equal(t, "go", el.Attributes["id"])
	assert.Equal(t, 7, *el.HighlightIndex)
}

func TestDOMHistoryElementToDictKeySet(t *testing.T) {
	t.Parallel()
	el := &schemas.DOMHistoryElement{
		TagName:                "a",
		XPath:                  "/html/body/a[2]",
		HighlightIndex:         intPtr(3),
		EntireParentBranchPath: []string{"html", "body", "a"},
		Attributes:             map[string]string{"href": "/next"},
		ShadowRoot:             false,
		// In-memory extras must never leak into the dict.
		CSSSelector:     "a#next",
		PageCoordinates: &schemas.CoordinateSet{Width: 10, Height: 10},
	}

	d := el.ToDict()
	assert.Len(t, d, 6, "the serialized descriptor carries exactly six keys")
	assert.Equal(t, "a", d["tag_name"])
	assert.Equal(t, "/html/body/a[2]", d["xpath"])
	assert.Equal(t, 3, d["highlight_index"])
	assert.Equal(t, []string{"html", "body", "a"}, d["entire_parent_branch_path"])
	assert.Equal(t, map[string]string{"href": "/next"}, d["attributes"])
	assert.Equal(t, false, d["shadow_root"])
}

func TestDOMHistoryElementToDictNilDefaults(t *testing.T) {
	t.Parallel()
	el := &schemas.DOMHistoryElement{TagName: "div", XPath: "/html/body/div"}
	d := el.ToDict()

	assert.Nil(t, d["highlight_index"], "absent highlight index stays an explicit null")
	assert.Equal(t, []string{}, d["entire_parent_branch_path"], "nil branch path serializes as empty list")
	assert.Equal(t, map[string]string{}, d["attributes"], "nil attributes serialize as empty object")
}

func TestElementSlotMarshal(t *testing.T) {
	t.Parallel()

	t.Run("Unresolved", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(schemas.UnresolvedSlot())
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("Resolved", func(t *testing.T) {
		t.Parallel()
		slot := schemas.ResolvedSlot(&schemas.DOMHistoryElement{
			TagName:                "input",
			XPath:                  "/html/body/input",
			HighlightIndex:         intPtr(1),
			EntireParentBranchPath: []string{"html", "body", "input"},
			Attributes:             map[string]string{"name": "q"},
		})
		data, err := json.Marshal(slot)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Len(t, decoded, 6)
		assert.Equal(t, "input", decoded["tag_name"])
		assert.Equal(t, float64(1), decoded["highlight_index"])
	})

	t.Run("NilDescriptorNormalizesToUnresolved", func(t *testing.T) {
		t.Parallel()
		slot := schemas.ResolvedSlot(nil)
		_, ok := slot.Element()
		assert.False(t, ok)
	})
}

func TestElementSlotArrayKeepsPositions(t *testing.T) {
	t.Parallel()
	slots := []schemas.ElementSlot{
		schemas.ResolvedSlot(&schemas.DOMHistoryElement{TagName: "a", XPath: "/html/body/a"}),
		schemas.UnresolvedSlot(),
		schemas.ResolvedSlot(&schemas.DOMHistoryElement{TagName: "b", XPath: "/html/body/b"}),
	}
	data, err := json.Marshal(slots)
	require.NoError(t, err)

	var decoded []any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 3, "null slots hold their position, they are never dropped")
	assert.NotNil(t, decoded[0])
	assert.Nil(t, decoded[1])
	assert.NotNil(t, decoded[2])
}

func TestElementSlotUnmarshal(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		input    string
		resolved bool
		tagName  string
		wantErr  bool
	}{
		{name: "Null", input: `null`, resolved: false},
		{
			name: "Object",
			input: `{"tag_name":"a","xpath":"/html/body/a","highlight_index":2,` +
				`"entire_parent_branch_path":["html","body","a"],"attributes":{"href":"/x"},"shadow_root":true}`,
			resolved: true,
			tagName:  "a",
		},
		{name: "WrongType", input: `"just a string"`, wantErr: true},
		{name: "BadHighlightIndex", input: `{"tag_name":"a","xpath":"/a","highlight_index":"NaN"}`, wantErr: true},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var slot schemas.ElementSlot
			err := json.Unmarshal([]byte(tt.input), &slot)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			el, ok := slot.Element()
			assert.Equal(t, tt.resolved, ok)
			if tt.resolved {
				require.NotNil(t, el)
				assert.Equal(t, tt.tagName, el.TagName)
				assert.True(t, el.ShadowRoot)
				assert.Equal(t, "/x", el.Attributes["href"])
			}
		})
	}
}

func TestResolverFuncAdapter(t *testing.T) {
	t.Parallel()
	var resolver schemas.ElementResolver = schemas.ResolverFunc(func(node *schemas.ElementNode) *schemas.DOMHistoryElement {
		if node == nil {
			return nil
		}
		return node.HistoryElement()
	})

	_, button := buildTestTree()
	el := resolver.Resolve(button)
	require.NotNil(t, el)
	assert.Equal(t, "button", el.TagName)
	assert.Nil(t, resolver.Resolve(nil))
}
