package analytics

import (
	"cmp"
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/nao1215/osintnexus/internal/model"
)

// node is an entity in the gonum graphs.
type node struct {
	entity model.Entity
}

func (n node) ID() int64 { return n.entity.ID }

// DOTID implements dot.Node.
func (n node) DOTID() string { return strconv.FormatInt(n.entity.ID, 10) }

// Attributes implements encoding.Attributer.
func (n node) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "label", Value: strconv.Quote(n.entity.DisplayLabel())},
		{Key: "type", Value: strconv.Quote(n.entity.Type)},
	}
}

// edge joins two entities. Parallel connections between the same pair
// collapse into one edge carrying every relationship and the summed weight.
type edge struct {
	from, to      node
	relationships []string
	weight        float64
}

func (e *edge) From() graph.Node { return e.from }
func (e *edge) To() graph.Node   { return e.to }

func (e *edge) ReversedEdge() graph.Edge {
	return &edge{from: e.to, to: e.from, relationships: e.relationships, weight: e.weight}
}

// Relationship returns the edge's relationships joined by commas.
func (e *edge) Relationship() string { return strings.Join(e.relationships, ", ") }

// Attributes implements encoding.Attributer.
func (e *edge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "label", Value: strconv.Quote(e.Relationship())},
		{Key: "weight", Value: strconv.FormatFloat(e.weight, 'g', -1, 64)},
	}
}

// Graph is the analyzable form of a project's entities and connections.
// Centrality, paths and communities work on the undirected view; PageRank
// follows connection direction.
type Graph struct {
	undirected *simple.UndirectedGraph
	directed   *simple.DirectedGraph
	entities   map[int64]model.Entity

	// Computed on first use.
	paths      *path.AllShortest
	centrality []Centrality
}

// FromExport builds a Graph from a project export. Connections whose
// endpoints are not in the export and self connections are left out.
func FromExport(export *model.ProjectExport) *Graph {
	g := &Graph{
		undirected: simple.NewUndirectedGraph(),
		directed:   simple.NewDirectedGraph(),
		entities:   make(map[int64]model.Entity, len(export.Entities)),
	}
	for _, e := range export.Entities {
		if _, dup := g.entities[e.ID]; dup {
			continue
		}
		g.entities[e.ID] = e
		g.undirected.AddNode(node{entity: e})
		g.directed.AddNode(node{entity: e})
	}

	for _, c := range export.Connections {
		src, okSrc := g.entities[c.SourceID]
		dst, okDst := g.entities[c.TargetID]
		if !okSrc || !okDst || c.SourceID == c.TargetID {
			continue
		}
		weight := c.Weight
		if weight <= 0 {
			weight = 1
		}
		g.addEdge(g.undirected.Edge(c.SourceID, c.TargetID), func(e graph.Edge) { g.undirected.SetEdge(e) }, node{src}, node{dst}, c.Relationship, weight)
		g.addEdge(g.directed.Edge(c.SourceID, c.TargetID), func(e graph.Edge) { g.directed.SetEdge(e) }, node{src}, node{dst}, c.Relationship, weight)
	}
	return g
}

// addEdge merges a connection into existing or stores a new edge.
func (g *Graph) addEdge(existing graph.Edge, set func(graph.Edge), from, to node, relationship string, weight float64) {
	if e, ok := existing.(*edge); ok {
		if !slices.Contains(e.relationships, relationship) {
			e.relationships = append(e.relationships, relationship)
		}
		e.weight += weight
		return
	}
	set(&edge{from: from, to: to, relationships: []string{relationship}, weight: weight})
}

// Entity returns the entity with id.
func (g *Graph) Entity(id int64) (model.Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Len returns the number of entities.
func (g *Graph) Len() int { return len(g.entities) }

// ids returns the entity ids in ascending order.
func (g *Graph) ids() []int64 {
	ids := make([]int64, 0, len(g.entities))
	for id := range g.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// undirectedEdges returns the undirected edges ordered by endpoint ids.
func (g *Graph) undirectedEdges() []*edge {
	var edges []*edge
	for _, e := range graph.EdgesOf(g.undirected.Edges()) {
		edges = append(edges, e.(*edge))
	}
	slices.SortFunc(edges, func(a, b *edge) int {
		return cmp.Or(cmp.Compare(a.from.ID(), b.from.ID()), cmp.Compare(a.to.ID(), b.to.ID()))
	})
	return edges
}

// WriteDOT writes the directed graph in Graphviz DOT format.
func (g *Graph) WriteDOT(w io.Writer, name string) error {
	b, err := dot.Marshal(g.directed, name, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode DOT: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("failed to write DOT: %w", err)
	}
	return nil
}

type graphML struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	Name     string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// WriteGraphML writes the directed graph as GraphML.
func (g *Graph) WriteGraphML(w io.Writer, name string) error {
	doc := graphML{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys: []graphMLKey{
			{ID: "type", For: "node", Name: "type", AttrType: "string"},
			{ID: "value", For: "node", Name: "value", AttrType: "string"},
			{ID: "label", For: "node", Name: "label", AttrType: "string"},
			{ID: "relationship", For: "edge", Name: "relationship", AttrType: "string"},
			{ID: "weight", For: "edge", Name: "weight", AttrType: "double"},
		},
		Graph: graphMLGraph{ID: name, EdgeDefault: "directed"},
	}

	for _, id := range g.ids() {
		e := g.entities[id]
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{
			ID: "n" + strconv.FormatInt(id, 10),
			Data: []graphMLData{
				{Key: "type", Value: e.Type},
				{Key: "value", Value: e.Value},
				{Key: "label", Value: e.DisplayLabel()},
			},
		})
	}

	edges := make([]*edge, 0)
	for _, e := range graph.EdgesOf(g.directed.Edges()) {
		edges = append(edges, e.(*edge))
	}
	slices.SortFunc(edges, func(a, b *edge) int {
		return cmp.Or(cmp.Compare(a.from.ID(), b.from.ID()), cmp.Compare(a.to.ID(), b.to.ID()))
	})
	for _, e := range edges {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			Source: "n" + strconv.FormatInt(e.from.ID(), 10),
			Target: "n" + strconv.FormatInt(e.to.ID(), 10),
			Data: []graphMLData{
				{Key: "relationship", Value: e.Relationship()},
				{Key: "weight", Value: strconv.FormatFloat(e.weight, 'g', -1, 64)},
			},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write GraphML: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode GraphML: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write GraphML: %w", err)
	}
	return nil
}
