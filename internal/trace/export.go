package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/andybalholm/brotli"
	"github.com/beevik/etree"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/statetrace/api/schemas"
)

// Format selects an export rendering.
type Format string

const (
	// FormatJSON is a single JSON document holding the whole history.
	FormatJSON Format = "json"
	// FormatJSONL is the trace file's own line format.
	FormatJSONL Format = "jsonl"
	// FormatXML is an element-per-step report.
	FormatXML Format = "xml"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatJSONL, FormatXML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json, jsonl or xml)", s)
	}
}

// Extension returns the file suffix for the format, without compression.
func (f Format) Extension() string {
	return "." + string(f)
}

// Exporter renders recorded sessions into interchange formats.
type Exporter struct {
	logger *zap.Logger
	reader *Reader
}

// NewExporter creates an exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{logger: logger.Named("exporter"), reader: NewReader(logger)}
}

// Export renders entries to w in the given format.
func (e *Exporter) Export(w io.Writer, entries []*schemas.HistoryEntry, format Format) error {
	switch format {
	case FormatJSON:
		return exportJSON(w, entries)
	case FormatJSONL:
		return exportJSONL(w, entries)
	case FormatXML:
		return exportXML(w, entries)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// ExportFile renders entries into a file, brotli-compressing when asked. The
// path should already carry the format extension; compression appends .br.
func (e *Exporter) ExportFile(path string, entries []*schemas.HistoryEntry, format Format, compress bool) (string, error) {
	if compress {
		path += CompressedSuffix
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}

	var w io.Writer = file
	var bw *brotli.Writer
	if compress {
		bw = brotli.NewWriter(file)
		w = bw
	}

	exportErr := e.Export(w, entries, format)
	if bw != nil {
		if err := bw.Close(); err != nil && exportErr == nil {
			exportErr = fmt.Errorf("flushing compressed export: %w", err)
		}
	}
	if err := file.Close(); err != nil && exportErr == nil {
		exportErr = fmt.Errorf("closing export file: %w", err)
	}
	if exportErr != nil {
		os.Remove(path)
		return "", exportErr
	}

	e.logger.Info("Exported session file",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("steps", len(entries)))
	return path, nil
}

// ExportSession loads one session from the storage root and writes
// <outDir>/<session-id>.<format>[.br], returning the written path.
func (e *Exporter) ExportSession(root, sessionID, outDir string, format Format, compress bool) (string, error) {
	entries, err := e.reader.Load(root, sessionID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, sessionID+format.Extension())
	return e.ExportFile(path, entries, format, compress)
}

// ExportAll exports every session found under the storage root, at most
// concurrency sessions in flight. The first failure cancels the rest.
func (e *Exporter) ExportAll(ctx context.Context, root, outDir string, format Format, compress bool, concurrency int) ([]string, error) {
	sessions, err := ListSessions(root)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	written := make([]string, len(sessions))
	for i, sessionID := range sessions {
		i, sessionID := i, sessionID
		g.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			path, err := e.ExportSession(root, sessionID, outDir, format, compress)
			if err != nil {
				return fmt.Errorf("exporting %s: %w", sessionID, err)
			}
			written[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return written, nil
}

func exportJSON(w io.Writer, entries []*schemas.HistoryEntry) error {
	history := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		history = append(history, entry.ToDict())
	}
	data, err := json.MarshalIndent(map[string]any{"history": history}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history document: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing history document: %w", err)
	}
	return nil
}

func exportJSONL(w io.Writer, entries []*schemas.HistoryEntry) error {
	for i, entry := range entries {
		line, err := EncodeEntry(entry)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func exportXML(w io.Writer, entries []*schemas.HistoryEntry) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("session")
	root.CreateAttr("steps", strconv.Itoa(len(entries)))

	for i, entry := range entries {
		step := root.CreateElement("step")
		step.CreateAttr("index", strconv.Itoa(i+1))
		step.CreateAttr("url", entry.URL)
		step.CreateAttr("title", entry.Title)

		tabs := step.CreateElement("tabs")
		for _, tab := range entry.Tabs {
			t := tabs.CreateElement("tab")
			t.CreateAttr("page_id", strconv.Itoa(tab.PageID))
			t.CreateAttr("url", tab.URL)
			t.CreateAttr("title", tab.Title)
			if tab.ParentPageID != nil {
				t.CreateAttr("parent_page_id", strconv.Itoa(*tab.ParentPageID))
			}
		}

		if entry.ScreenshotPath != nil {
			step.CreateElement("screenshot").CreateAttr("path", *entry.ScreenshotPath)
		}

		interactions := step.CreateElement("interactions")
		for _, slot := range entry.InteractedElements {
			el, ok := slot.Element()
			if !ok {
				interactions.CreateElement("unresolved")
				continue
			}
			node := interactions.CreateElement("element")
			node.CreateAttr("tag_name", el.TagName)
			node.CreateAttr("xpath", el.XPath)
			if el.HighlightIndex != nil {
				node.CreateAttr("highlight_index", strconv.Itoa(*el.HighlightIndex))
			}
			node.CreateAttr("shadow_root", strconv.FormatBool(el.ShadowRoot))
			for _, tag := range el.EntireParentBranchPath {
				node.CreateElement("ancestor").SetText(tag)
			}
			names := make([]string, 0, len(el.Attributes))
			for name := range el.Attributes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				attr := node.CreateElement("attribute")
				attr.CreateAttr("name", name)
				attr.CreateAttr("value", el.Attributes[name])
			}
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("writing XML report: %w", err)
	}
	return nil
}
