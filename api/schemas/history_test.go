package schemas_test

import (
	"encoding/base64"
	stdjson "encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/statetrace/api/schemas"
)

// -- Test Helpers --

func sampleSnapshot() *schemas.StateSnapshot {
	return schemas.NewStateSnapshot(schemas.DOMState{}, "https://a.test", "A", []schemas.TabInfo{
		{PageID: 0, URL: "https://a.test", Title: "A"},
		{PageID: 1, URL: "https://b.test", Title: "B", ParentPageID: intPtr(0)},
	})
}

func sampleElement() *schemas.DOMHistoryElement {
	return &schemas.DOMHistoryElement{
		TagName:                "button",
		XPath:                  "/html/body/form/button[1]",
		HighlightIndex:         intPtr(7),
		EntireParentBranchPath: []string{"html", "body", "form", "button"},
		Attributes:             map[string]string{"type": "submit"},
	}
}

func writePlaceholderPNG(t *testing.T, path string) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(schemas.PlaceholderScreenshot)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return data
}

// -- Test Cases --

func TestNewHistoryEntryOwnership(t *testing.T) {
	t.Parallel()
	snap := sampleSnapshot()
	slots := []schemas.ElementSlot{schemas.ResolvedSlot(sampleElement()), schemas.UnresolvedSlot()}

	entry := schemas.NewHistoryEntry(snap, slots, "")

	// Reusing the snapshot for the next step must not bleed into the entry.
	snap.Tabs[0].Title = "mutated"
	slots[1] = schemas.ResolvedSlot(sampleElement())

	assert.Equal(t, "A", entry.Tabs[0].Title)
	_, ok := entry.InteractedElements[1].Element()
	assert.False(t, ok, "slot slice must be copied at projection time")
	assert.Nil(t, entry.ScreenshotPath, "empty path records absence as nil")
}

func TestNewHistoryEntryScreenshotPath(t *testing.T) {
	t.Parallel()
	entry := schemas.NewHistoryEntry(sampleSnapshot(), nil, "/data/run/screenshots/step_0001.png")
	require.NotNil(t, entry.ScreenshotPath)
	assert.Equal(t, "/data/run/screenshots/step_0001.png", *entry.ScreenshotPath)
	assert.NotNil(t, entry.InteractedElements, "nil slot input still yields a non-nil empty slice")
	assert.Len(t, entry.InteractedElements, 0)
}

func TestGetScreenshotLenientReads(t *testing.T) {
	t.Parallel()

	t.Run("NilPath", func(t *testing.T) {
		t.Parallel()
		entry := &schemas.HistoryEntry{}
		got, ok := entry.GetScreenshot()
		assert.False(t, ok)
		assert.Empty(t, got)
	})

	t.Run("MissingFile", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "step_0001.png")
		entry := schemas.NewHistoryEntry(sampleSnapshot(), nil, path)
		_, ok := entry.GetScreenshot()
		assert.False(t, ok, "pruned screenshots are absence, not failure")
	})

	t.Run("UnreadablePath", func(t *testing.T) {
		t.Parallel()
		// A directory at the path makes the read itself fail.
		dir := t.TempDir()
		entry := schemas.NewHistoryEntry(sampleSnapshot(), nil, dir)
		_, ok := entry.GetScreenshot()
		assert.False(t, ok)
	})

	t.Run("EmptyFile", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "step_0001.png")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		entry := schemas.NewHistoryEntry(sampleSnapshot(), nil, path)
		_, ok := entry.GetScreenshot()
		assert.False(t, ok)
	})

	t.Run("NonImageBytes", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "step_0001.png")
		require.NoError(t, os.WriteFile(path, []byte("definitely not a PNG"), 0o644))
		entry := schemas.NewHistoryEntry(sampleSnapshot(), nil, path)
		_, ok := entry.GetScreenshot()
		assert.False(t, ok)
	})

	t.Run("ValidImage", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "step_0001.png")
		raw := writePlaceholderPNG(t, path)
		entry := schemas.NewHistoryEntry(sampleSnapshot(), nil, path)
		got, ok := entry.GetScreenshot()
		require.True(t, ok)
		assert.Equal(t, base64.StdEncoding.EncodeToString(raw), got,
			"returned base64 must encode exactly the file's bytes")
	})
}

func TestHistoryEntryToDictContract(t *testing.T) {
	t.Parallel()
	snap := schemas.NewStateSnapshot(schemas.DOMState{}, "https://a.test", "A", []schemas.TabInfo{
		{PageID: 0, URL: "https://a.test", Title: "A"},
	})
	entry := schemas.NewHistoryEntry(snap, []schemas.ElementSlot{schemas.UnresolvedSlot()}, "")

	d := entry.ToDict()
	require.Len(t, d, 5, "the envelope carries exactly five keys")

	assert.Equal(t, "https://a.test", d["url"])
	assert.Equal(t, "A", d["title"])

	path, present := d["screenshot_path"]
	require.True(t, present, "screenshot_path must appear even when absent")
	assert.Nil(t, path)

	slots, ok := d["interacted_element"].([]any)
	require.True(t, ok)
	require.Len(t, slots, 1, "unresolved slots survive as explicit nulls")
	assert.Nil(t, slots[0])

	tabs, ok := d["tabs"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, tabs, 1)
	assert.Equal(t, 0, tabs[0]["page_id"])
	assert.Nil(t, tabs[0]["parent_page_id"])
}

func TestHistoryEntryMarshalMatchesToDict(t *testing.T) {
	t.Parallel()
	path := "/data/run/screenshots/step_0002.png"
	entry := schemas.NewHistoryEntry(sampleSnapshot(), []schemas.ElementSlot{
		schemas.ResolvedSlot(sampleElement()),
		schemas.UnresolvedSlot(),
	}, path)

	fromStruct, err := json.Marshal(entry)
	require.NoError(t, err)
	fromDict, err := json.Marshal(entry.ToDict())
	require.NoError(t, err)

	var structMap, dictMap map[string]any
	require.NoError(t, json.Unmarshal(fromStruct, &structMap))
	require.NoError(t, json.Unmarshal(fromDict, &dictMap))

	if diff := cmp.Diff(dictMap, structMap); diff != "" {
		t.Errorf("struct marshaling diverged from the dict contract (-dict +struct):\n%s", diff)
	}
}

func TestHistoryEntryJSONRoundTrip(t *testing.T) {
	t.Parallel()
	entry := schemas.NewHistoryEntry(sampleSnapshot(), []schemas.ElementSlot{
		schemas.UnresolvedSlot(),
		schemas.ResolvedSlot(sampleElement()),
	}, "/data/run/screenshots/step_0003.png")

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded schemas.HistoryEntry
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.Tabs, 2)
	assert.Equal(t, entry.Tabs, decoded.Tabs)
	require.NotNil(t, decoded.ScreenshotPath)
	assert.Equal(t, *entry.ScreenshotPath, *decoded.ScreenshotPath)

	require.Len(t, decoded.InteractedElements, 2)
	_, ok := decoded.InteractedElements[0].Element()
	assert.False(t, ok)
	el, ok := decoded.InteractedElements[1].Element()
	require.True(t, ok)
	assert.Equal(t, "button", el.TagName)
	require.NotNil(t, el.HighlightIndex)
	assert.Equal(t, 7, *el.HighlightIndex)
	assert.Equal(t, []string{"html", "body", "form", "button"}, el.EntireParentBranchPath)
}

func TestHistoryEntryFromDictRoundTrip(t *testing.T) {
	t.Parallel()
	orig := schemas.NewHistoryEntry(sampleSnapshot(), []schemas.ElementSlot{
		schemas.ResolvedSlot(sampleElement()),
		schemas.UnresolvedSlot(),
	}, "/data/run/screenshots/step_0004.png")

	// Push the dict through real JSON so the types are what a decoder hands back.
	data, err := json.Marshal(orig.ToDict())
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))

	restored, err := schemas.HistoryEntryFromDict(generic)
	require.NoError(t, err)

	if diff := cmp.Diff(orig.ToDict(), restored.ToDict()); diff != "" {
		t.Errorf("round trip lost data (-orig +restored):\n%s", diff)
	}
}

func TestHistoryEntryFromDictNumericShapes(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name   string
		pageID any
	}{
		{"Int", int(4)},
		{"Int64", int64(4)},
		{"Float64", float64(4)},
		{"JSONNumber", stdjson.Number("4")},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := map[string]any{
				"url":   "https://a.test",
				"title": "A",
				"tabs": []any{
					map[string]any{"page_id": tt.pageID, "url": "https://a.test", "title": "A", "parent_page_id": nil},
				},
				"interacted_element": []any{nil},
				"screenshot_path":    nil,
			}
			entry, err := schemas.HistoryEntryFromDict(d)
			require.NoError(t, err)
			require.Len(t, entry.Tabs, 1)
			assert.Equal(t, 4, entry.Tabs[0].PageID)
		})
	}
}

func TestHistoryEntryFromDictRejectsStructuralMismatches(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		dict    map[string]any
		wantErr string
	}{
		{
			name:    "TabsNotArray",
			dict:    map[string]any{"url": "u", "title": "t", "tabs": "nope"},
			wantErr: "tabs is string",
		},
		{
			name:    "TabMissingPageID",
			dict:    map[string]any{"url": "u", "title": "t", "tabs": []any{map[string]any{"url": "x"}}},
			wantErr: "missing page_id",
		},
		{
			name:    "SlotWrongType",
			dict:    map[string]any{"url": "u", "title": "t", "interacted_element": []any{42.0}},
			wantErr: "interacted_element[0]",
		},
		{
			name:    "ScreenshotPathWrongType",
			dict:    map[string]any{"url": "u", "title": "t", "screenshot_path": 12.0},
			wantErr: "screenshot_path",
		},
		{
			name:    "URLWrongType",
			dict:    map[string]any{"url": 5.0, "title": "t"},
			wantErr: "url is float64",
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := schemas.HistoryEntryFromDict(tt.dict)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
