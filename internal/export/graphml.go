package export

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

type graphML struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLGraph struct {
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID string `xml:"id,attr"`
}

type graphMLEdge struct {
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
}

// exportGraphML writes a directed graph whose node ids are URLs. Edge endpoints
// missing from the node list become nodes, and parallel edges collapse.
func (e *Exporter) exportGraphML(ctx context.Context, runID string) (File, error) {
	nodes, edges, err := e.store.Load(ctx, runID)
	if err != nil {
		return File{}, err
	}

	doc := graphML{XMLNS: graphMLNamespace, Graph: graphMLGraph{EdgeDefault: "directed"}}
	seenNode := make(map[string]struct{}, len(nodes))
	addNode := func(id string) {
		if _, ok := seenNode[id]; ok {
			return
		}
		seenNode[id] = struct{}{}
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{ID: id})
	}
	for _, n := range nodes {
		addNode(n.URL)
	}
	seenEdge := make(map[[2]string]struct{}, len(edges))
	for _, ed := range edges {
		key := [2]string{ed.From, ed.To}
		if _, ok := seenEdge[key]; ok {
			continue
		}
		seenEdge[key] = struct{}{}
		addNode(ed.From)
		addNode(ed.To)
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{Source: ed.From, Target: ed.To})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return File{}, fmt.Errorf("encode graphml: %w", err)
	}
	buf.WriteByte('\n')
	return File{Name: runID + ".graphml", ContentType: "application/xml", Data: buf.Bytes()}, nil
}
