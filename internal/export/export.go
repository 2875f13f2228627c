// Package export renders a stored crawl graph into downloadable files.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/linkgraph-crawler/internal/artifacts"
	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

// Format names an export flavor.
type Format string

// Supported formats.
const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatGraphML Format = "graphml"
	FormatZip     Format = "zip"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatCSV, FormatGraphML, FormatZip:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", crawler.ErrUnsupportedFormat, raw)
	}
}

// File is a rendered export.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Exporter renders exports from the artifact store.
type Exporter struct {
	store *artifacts.Store
}

// New builds an Exporter.
func New(store *artifacts.Store) *Exporter {
	return &Exporter{store: store}
}

// Export renders runID in the requested format.
func (e *Exporter) Export(ctx context.Context, runID string, format Format) (File, error) {
	switch format {
	case FormatJSON:
		return e.exportJSON(ctx, runID)
	case FormatCSV:
		return e.exportCSV(ctx, runID)
	case FormatGraphML:
		return e.exportGraphML(ctx, runID)
	case FormatZip:
		return e.exportZip(ctx, runID)
	default:
		return File{}, fmt.Errorf("%w: %q", crawler.ErrUnsupportedFormat, format)
	}
}

type graphDocument struct {
	Nodes []crawler.NodeRecord `json:"nodes"`
	Edges []crawler.EdgeRecord `json:"edges"`
}

func (e *Exporter) exportJSON(ctx context.Context, runID string) (File, error) {
	nodes, edges, err := e.store.Load(ctx, runID)
	if err != nil {
		return File{}, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(graphDocument{Nodes: nonNilNodes(nodes), Edges: nonNilEdges(edges)}); err != nil {
		return File{}, fmt.Errorf("encode json export: %w", err)
	}
	return File{Name: runID + ".json", ContentType: "application/json", Data: buf.Bytes()}, nil
}

func (e *Exporter) exportCSV(ctx context.Context, runID string) (File, error) {
	nodes, edges, err := e.store.Load(ctx, runID)
	if err != nil {
		return File{}, err
	}

	nodeRows := [][]string{{"url", "status", "title", "content_type", "depth"}}
	for _, n := range nodes {
		status := ""
		if n.Status != nil {
			status = strconv.Itoa(*n.Status)
		}
		nodeRows = append(nodeRows, []string{n.URL, status, n.Title, n.ContentType, strconv.Itoa(n.Depth)})
	}
	edgeRows := [][]string{{"from", "to", "anchor_text"}}
	for _, ed := range edges {
		edgeRows = append(edgeRows, []string{ed.From, ed.To, ed.AnchorText})
	}

	nodesCSV, err := encodeCSV(nodeRows)
	if err != nil {
		return File{}, err
	}
	edgesCSV, err := encodeCSV(edgeRows)
	if err != nil {
		return File{}, err
	}
	data, err := zipEntries([]zipEntry{
		{name: "nodes.csv", data: nodesCSV},
		{name: "edges.csv", data: edgesCSV},
	})
	if err != nil {
		return File{}, err
	}
	return File{Name: runID + "_csv.zip", ContentType: "application/zip", Data: data}, nil
}

func (e *Exporter) exportZip(ctx context.Context, runID string) (File, error) {
	names, err := e.store.Files(ctx, runID)
	if err != nil {
		return File{}, err
	}
	entries := make([]zipEntry, 0, len(names))
	for _, name := range names {
		data, err := e.store.ReadFile(ctx, runID, name)
		if err != nil {
			return File{}, err
		}
		entries = append(entries, zipEntry{name: name, data: data})
	}
	data, err := zipEntries(entries)
	if err != nil {
		return File{}, err
	}
	return File{Name: runID + "_full.zip", ContentType: "application/zip", Data: data}, nil
}

func encodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

type zipEntry struct {
	name string
	data []byte
}

func zipEntries(entries []zipEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: entry.name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", entry.name, err)
		}
		if _, err := w.Write(entry.data); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

func nonNilNodes(nodes []crawler.NodeRecord) []crawler.NodeRecord {
	if nodes == nil {
		return []crawler.NodeRecord{}
	}
	return nodes
}

func nonNilEdges(edges []crawler.EdgeRecord) []crawler.EdgeRecord {
	if edges == nil {
		return []crawler.EdgeRecord{}
	}
	return edges
}
