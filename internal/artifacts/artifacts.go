// Package artifacts persists a finished crawl graph through a BlobStore using
// a fixed per-run layout:
//
//	<run_id>/nodes.json
//	<run_id>/edges.json
//	<run_id>/bodies/<sha256(url)[:16]>.html
//	<run_id>/exports/<file>
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

const (
	nodesFile  = "nodes.json"
	edgesFile  = "edges.json"
	bodiesDir  = "bodies"
	exportsDir = "exports"
)

// Store reads and writes run artifacts.
type Store struct {
	blobs crawler.BlobStore
}

// New wraps a BlobStore.
func New(blobs crawler.BlobStore) *Store {
	return &Store{blobs: blobs}
}

// Save writes nodes, edges and (when storeBodies) one HTML file per node body.
func (s *Store) Save(ctx context.Context, runID string, nodes []crawler.NodeRecord, edges []crawler.EdgeRecord, storeBodies bool) error {
	if nodes == nil {
		nodes = []crawler.NodeRecord{}
	}
	if edges == nil {
		edges = []crawler.EdgeRecord{}
	}
	if err := s.putJSON(ctx, path.Join(runID, nodesFile), nodes); err != nil {
		return err
	}
	if err := s.putJSON(ctx, path.Join(runID, edgesFile), edges); err != nil {
		return err
	}
	if !storeBodies {
		return nil
	}
	for _, node := range nodes {
		if node.Body == "" {
			continue
		}
		name := path.Join(runID, bodiesDir, crawler.BodyFileName(node.URL))
		if _, err := s.blobs.PutObject(ctx, name, "text/html; charset=utf-8", strings.NewReader(node.Body)); err != nil {
			return fmt.Errorf("write body %s: %w", name, err)
		}
	}
	return nil
}

// Load reads back nodes and edges. A run without nodes.json has no artifacts.
func (s *Store) Load(ctx context.Context, runID string) ([]crawler.NodeRecord, []crawler.EdgeRecord, error) {
	var nodes []crawler.NodeRecord
	if err := s.getJSON(ctx, path.Join(runID, nodesFile), &nodes); err != nil {
		return nil, nil, err
	}
	var edges []crawler.EdgeRecord
	if err := s.getJSON(ctx, path.Join(runID, edgesFile), &edges); err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

// Files lists artifact names relative to the run directory, excluding exports.
func (s *Store) Files(ctx context.Context, runID string) ([]string, error) {
	prefix := runID + "/"
	paths, err := s.blobs.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel := strings.TrimPrefix(p, prefix)
		if rel == "" || strings.HasPrefix(rel, exportsDir+"/") {
			continue
		}
		out = append(out, rel)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrArtifactsNotFound, runID)
	}
	return out, nil
}

// ReadFile returns one artifact by its run-relative name.
func (s *Store) ReadFile(ctx context.Context, runID, name string) ([]byte, error) {
	data, err := s.blobs.GetObject(ctx, path.Join(runID, name))
	if errors.Is(err, crawler.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", crawler.ErrArtifactsNotFound, runID, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// SaveExport stores a rendered export next to the artifacts and returns its URI.
func (s *Store) SaveExport(ctx context.Context, runID, name, contentType string, data []byte) (string, error) {
	uri, err := s.blobs.PutObject(ctx, path.Join(runID, exportsDir, name), contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write export %s: %w", name, err)
	}
	return uri, nil
}

func (s *Store) putJSON(ctx context.Context, name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if _, err := s.blobs.PutObject(ctx, name, "application/json", &buf); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, name string, v any) error {
	data, err := s.blobs.GetObject(ctx, name)
	if errors.Is(err, crawler.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s", crawler.ErrArtifactsNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
