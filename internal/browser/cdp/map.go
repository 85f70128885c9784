// Package cdp maps already-fetched Chrome DevTools Protocol values onto the
// snapshot model. It performs no protocol calls of its own; callers hand it
// the results of target.GetTargets and page.GetLayoutMetrics.
package cdp

import (
	"math"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"

	"github.com/xkilldash9x/statetrace/api/schemas"
)

// pageTargetType is the CDP target type for top-level pages. Workers,
// extensions and devtools targets report other types and never become tabs.
const pageTargetType = "page"

// TabsFromTargets maps CDP target descriptors onto a snapshot tab list. Page
// ids are positional: the n-th page target becomes page_id n. A popup keeps
// its parent link only when the opener is itself one of the listed page
// targets, so the result always satisfies ValidateTabs.
func TabsFromTargets(targets []*target.Info) []schemas.TabInfo {
	var pages []*target.Info
	idByTarget := make(map[target.ID]int, len(targets))
	for _, info := range targets {
		if info == nil || info.Type != pageTargetType {
			continue
		}
		idByTarget[info.TargetID] = len(pages)
		pages = append(pages, info)
	}

	tabs := make([]schemas.TabInfo, len(pages))
	for i, info := range pages {
		tab := schemas.TabInfo{
			PageID: i,
			URL:    info.URL,
			Title:  info.Title,
		}
		if info.OpenerID != "" {
			if parent, ok := idByTarget[info.OpenerID]; ok && parent != i {
				parentID := parent
				tab.ParentPageID = &parentID
			}
		}
		tabs[i] = tab
	}
	return tabs
}

// GeometryFromMetrics folds page.GetLayoutMetrics results into a
// PageGeometry. The visual viewport wins over the layout viewport when both
// are present; CSS pixels arrive fractional under zoom and are rounded to
// the nearest integer. Overflow distances are clamped at zero. Returns nil
// when no metric is present at all.
func GeometryFromMetrics(layout *page.LayoutViewport, visual *page.VisualViewport, content *dom.Rect) *schemas.PageGeometry {
	if layout == nil && visual == nil && content == nil {
		return nil
	}

	geo := &schemas.PageGeometry{}

	switch {
	case visual != nil:
		geo.ViewportWidth = roundPx(visual.ClientWidth)
		geo.ViewportHeight = roundPx(visual.ClientHeight)
		geo.ScrollX = roundPx(visual.PageX)
		geo.ScrollY = roundPx(visual.PageY)
	case layout != nil:
		geo.ViewportWidth = int(layout.ClientWidth)
		geo.ViewportHeight = int(layout.ClientHeight)
		geo.ScrollX = int(layout.PageX)
		geo.ScrollY = int(layout.PageY)
	}

	if content != nil {
		geo.PageWidth = roundPx(content.Width)
		geo.PageHeight = roundPx(content.Height)
	} else {
		// Without a content size the page is assumed to fit the viewport.
		geo.PageWidth = geo.ViewportWidth
		geo.PageHeight = geo.ViewportHeight
	}

	geo.PixelsAbove = clampZero(geo.ScrollY)
	geo.PixelsLeft = clampZero(geo.ScrollX)
	geo.PixelsBelow = clampZero(geo.PageHeight - geo.ScrollY - geo.ViewportHeight)
	geo.PixelsRight = clampZero(geo.PageWidth - geo.ScrollX - geo.ViewportWidth)

	return geo
}

func roundPx(v float64) int {
	return int(math.Round(v))
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
