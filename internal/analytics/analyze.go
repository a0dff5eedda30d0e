package analytics

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/nao1215/osintnexus/internal/model"
)

// Defaults used when Options leaves a field unset.
const (
	DefaultTop         = 10
	DefaultSensitivity = 2.0
	DefaultPathLimit   = 5

	// bridgeThreshold is the normalized betweenness above which an entity
	// is reported as a bridge.
	bridgeThreshold = 0.3
	// hubTypes is the number of distinct neighbor types that makes a hub.
	hubTypes = 3
)

// ErrUnknownEntity is returned when an entity id is not part of the graph.
var ErrUnknownEntity = errors.New("entity not in graph")

// Metric names a centrality measure.
type Metric string

// Centrality measures.
const (
	MetricDegree      Metric = "degree"
	MetricBetweenness Metric = "betweenness"
	MetricCloseness   Metric = "closeness"
	MetricPageRank    Metric = "pagerank"
)

// ParseMetric returns the metric named s.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricDegree, MetricBetweenness, MetricCloseness, MetricPageRank:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q (use degree, betweenness, closeness or pagerank)", s)
}

// Statistics summarizes the shape of a graph.
type Statistics struct {
	Entities      int     `json:"entities"`
	Connections   int     `json:"connections"`
	Density       float64 `json:"density"`
	Components    int     `json:"components"`
	Connected     bool    `json:"connected"`
	AvgClustering float64 `json:"avg_clustering"`
	// Diameter is only set for connected graphs of two or more entities.
	Diameter *int `json:"diameter,omitempty"`
}

// Centrality holds the centrality measures of one entity. All values are
// normalized to [0, 1].
type Centrality struct {
	Entity      model.Entity `json:"entity"`
	Degree      float64      `json:"degree"`
	Betweenness float64      `json:"betweenness"`
	Closeness   float64      `json:"closeness"`
	PageRank    float64      `json:"pagerank"`
}

// Score returns the value of metric.
func (c Centrality) Score(metric Metric) float64 {
	switch metric {
	case MetricDegree:
		return c.Degree
	case MetricBetweenness:
		return c.Betweenness
	case MetricCloseness:
		return c.Closeness
	default:
		return c.PageRank
	}
}

// Community is a group of densely connected entities.
type Community struct {
	ID           int     `json:"id"`
	Label        string  `json:"label"`
	EntityIDs    []int64 `json:"entity_ids"`
	Density      float64 `json:"density"`
	DominantType string  `json:"dominant_type"`
}

// Anomaly kinds.
const (
	AnomalyIsolated = "isolated"
	AnomalyOutlier  = "outlier"
	AnomalyBridge   = "bridge"
	AnomalyHub      = "hub"
)

// Anomaly is an entity whose position in the graph stands out.
type Anomaly struct {
	Entity      model.Entity `json:"entity"`
	Kind        string       `json:"kind"`
	Score       float64      `json:"score"`
	Description string       `json:"description"`
}

// Path is one shortest route between two entities.
type Path struct {
	EntityIDs     []int64  `json:"entity_ids"`
	Relationships []string `json:"relationships"`
}

// Len returns the number of hops of p.
func (p Path) Len() int { return len(p.Relationships) }

// Options tunes Analyze.
type Options struct {
	// Top is the number of entities ranked by Metric.
	Top    int
	Metric Metric
	// Sensitivity is the number of standard deviations above the mean
	// degree that makes an outlier.
	Sensitivity float64
}

func (o Options) withDefaults() Options {
	if o.Top <= 0 {
		o.Top = DefaultTop
	}
	if o.Metric == "" {
		o.Metric = MetricPageRank
	}
	if o.Sensitivity <= 0 {
		o.Sensitivity = DefaultSensitivity
	}
	return o
}

// Report is the result of Analyze.
type Report struct {
	Statistics  Statistics         `json:"statistics"`
	Metric      Metric             `json:"metric"`
	Top         []Centrality       `json:"top"`
	Communities []Community        `json:"communities"`
	Modularity  float64            `json:"modularity"`
	Anomalies   []Anomaly          `json:"anomalies"`
	Clusters    map[string][]int64 `json:"clusters"`
}

// Analyze runs every analysis over g.
func (g *Graph) Analyze(opts Options) *Report {
	opts = opts.withDefaults()
	communities, modularity := g.Communities()
	return &Report{
		Statistics:  g.Statistics(),
		Metric:      opts.Metric,
		Top:         g.TopEntities(opts.Metric, opts.Top),
		Communities: communities,
		Modularity:  modularity,
		Anomalies:   g.Anomalies(opts.Sensitivity),
		Clusters:    g.Clusters(),
	}
}

// shortest returns the all-pairs shortest paths of the undirected view,
// counting every edge as one hop.
func (g *Graph) shortest() *path.AllShortest {
	if g.paths == nil {
		p := path.DijkstraAllPaths(g.undirected)
		g.paths = &p
	}
	return g.paths
}

// degree returns the number of neighbors of id.
func (g *Graph) degree(id int64) int {
	return g.undirected.From(id).Len()
}

// Statistics computes the summary statistics of g.
func (g *Graph) Statistics() Statistics {
	n := g.Len()
	stats := Statistics{
		Entities:    n,
		Connections: len(g.undirectedEdges()),
	}
	if n == 0 {
		return stats
	}

	if n > 1 {
		stats.Density = 2 * float64(stats.Connections) / float64(n*(n-1))
	}
	stats.Components = len(topo.ConnectedComponents(g.undirected))
	stats.Connected = stats.Components == 1

	var clustering float64
	for _, id := range g.ids() {
		clustering += g.clustering(id)
	}
	stats.AvgClustering = clustering / float64(n)

	if stats.Connected && n > 1 {
		sp := g.shortest()
		ids := g.ids()
		diameter := 0
		for _, u := range ids {
			for _, v := range ids {
				if d := sp.Weight(u, v); !math.IsInf(d, 1) && int(d) > diameter {
					diameter = int(d)
				}
			}
		}
		stats.Diameter = &diameter
	}
	return stats
}

// clustering returns the local clustering coefficient of id.
func (g *Graph) clustering(id int64) float64 {
	neighbors := graph.NodesOf(g.undirected.From(id))
	k := len(neighbors)
	if k < 2 {
		return 0
	}
	links := 0
	for i := range neighbors {
		for j := i + 1; j < k; j++ {
			if g.undirected.HasEdgeBetween(neighbors[i].ID(), neighbors[j].ID()) {
				links++
			}
		}
	}
	return 2 * float64(links) / float64(k*(k-1))
}

// Centrality computes the centrality measures of every entity, ordered by
// entity id.
func (g *Graph) Centrality() []Centrality {
	n := g.Len()
	if n == 0 {
		return nil
	}
	if g.centrality != nil {
		return g.centrality
	}

	betweenness := network.Betweenness(g.undirected)
	pagerank := network.PageRank(g.directed, 0.85, 1e-8)
	sp := g.shortest()
	ids := g.ids()

	out := make([]Centrality, 0, n)
	for _, id := range ids {
		c := Centrality{Entity: g.entities[id], PageRank: pagerank[id]}
		if n > 1 {
			c.Degree = float64(g.degree(id)) / float64(n-1)
		}
		if n > 2 {
			// Betweenness counts each unordered pair in both directions.
			c.Betweenness = betweenness[id] / float64((n-1)*(n-2))
		}

		var reachable, distance float64
		for _, other := range ids {
			if other == id {
				continue
			}
			if d := sp.Weight(other, id); !math.IsInf(d, 1) {
				reachable++
				distance += d
			}
		}
		if distance > 0 {
			c.Closeness = (reachable / float64(n-1)) * (reachable / distance)
		}
		out = append(out, c)
	}
	g.centrality = out
	return out
}

// TopEntities returns the n entities with the highest metric score, ties
// broken by entity id.
func (g *Graph) TopEntities(metric Metric, n int) []Centrality {
	ranked := slices.Clone(g.Centrality())
	slices.SortStableFunc(ranked, func(a, b Centrality) int {
		return cmp.Compare(b.Score(metric), a.Score(metric))
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Communities detects communities with the Louvain method and returns them
// largest first, together with the modularity of the partition.
func (g *Graph) Communities() ([]Community, float64) {
	if g.Len() == 0 {
		return nil, 0
	}

	// Without edges every entity is its own community.
	var (
		groups     [][]graph.Node
		modularity float64
	)
	if len(g.undirectedEdges()) == 0 {
		for _, id := range g.ids() {
			groups = append(groups, []graph.Node{g.undirected.Node(id)})
		}
	} else {
		groups = community.Modularize(g.undirected, 1, nil).Communities()
		modularity = community.Q(g.undirected, groups, 1)
	}

	communities := make([]Community, 0, len(groups))
	for _, members := range groups {
		ids := make([]int64, len(members))
		for i, m := range members {
			ids[i] = m.ID()
		}
		slices.Sort(ids)
		communities = append(communities, Community{
			EntityIDs:    ids,
			Density:      g.density(ids),
			DominantType: g.dominantType(ids),
		})
	}
	slices.SortFunc(communities, func(a, b Community) int {
		return cmp.Or(
			cmp.Compare(len(b.EntityIDs), len(a.EntityIDs)),
			cmp.Compare(a.EntityIDs[0], b.EntityIDs[0]),
		)
	})
	for i := range communities {
		communities[i].ID = i + 1
		communities[i].Label = fmt.Sprintf("Community %d (%s)", i+1, communities[i].DominantType)
	}
	return communities, modularity
}

// density returns the share of possible edges present among ids.
func (g *Graph) density(ids []int64) float64 {
	k := len(ids)
	if k < 2 {
		return 0
	}
	links := 0
	for i := range ids {
		for j := i + 1; j < k; j++ {
			if g.undirected.HasEdgeBetween(ids[i], ids[j]) {
				links++
			}
		}
	}
	return 2 * float64(links) / float64(k*(k-1))
}

// dominantType returns the most frequent entity type among ids.
func (g *Graph) dominantType(ids []int64) string {
	counts := make(map[string]int)
	for _, id := range ids {
		counts[g.entities[id].Type]++
	}
	best := ""
	for _, t := range slices.Sorted(maps.Keys(counts)) {
		if best == "" || counts[t] > counts[best] {
			best = t
		}
	}
	return best
}

// Anomalies reports isolated entities, degree outliers more than
// sensitivity standard deviations above the mean, bridges and hubs linking
// many entity types. Results are ordered by score, highest first.
func (g *Graph) Anomalies(sensitivity float64) []Anomaly {
	n := g.Len()
	if n == 0 {
		return nil
	}
	if sensitivity <= 0 {
		sensitivity = DefaultSensitivity
	}

	var mean float64
	for _, id := range g.ids() {
		mean += float64(g.degree(id))
	}
	mean /= float64(n)
	var variance float64
	for _, id := range g.ids() {
		d := float64(g.degree(id)) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(n))

	var anomalies []Anomaly
	for _, c := range g.Centrality() {
		id := c.Entity.ID
		degree := g.degree(id)
		if degree == 0 {
			anomalies = append(anomalies, Anomaly{
				Entity: c.Entity, Kind: AnomalyIsolated, Score: 1,
				Description: "no connections",
			})
			continue
		}

		if stddev > 0 {
			if z := (float64(degree) - mean) / stddev; z > sensitivity {
				anomalies = append(anomalies, Anomaly{
					Entity: c.Entity, Kind: AnomalyOutlier,
					Score:       math.Min(1, z/(2*sensitivity)),
					Description: fmt.Sprintf("unusually high connectivity (%d connections)", degree),
				})
			}
		}

		if c.Betweenness > bridgeThreshold {
			anomalies = append(anomalies, Anomaly{
				Entity: c.Entity, Kind: AnomalyBridge, Score: c.Betweenness,
				Description: "links otherwise separate parts of the graph",
			})
		}

		types := make(map[string]struct{})
		for _, nb := range graph.NodesOf(g.undirected.From(id)) {
			types[g.entities[nb.ID()].Type] = struct{}{}
		}
		if len(types) >= hubTypes {
			anomalies = append(anomalies, Anomaly{
				Entity: c.Entity, Kind: AnomalyHub,
				Score:       math.Min(1, float64(len(types))/5),
				Description: fmt.Sprintf("hub connecting %d entity types", len(types)),
			})
		}
	}

	slices.SortStableFunc(anomalies, func(a, b Anomaly) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return anomalies
}

// Clusters groups entity ids by entity type.
func (g *Graph) Clusters() map[string][]int64 {
	clusters := make(map[string][]int64)
	for _, id := range g.ids() {
		t := g.entities[id].Type
		clusters[t] = append(clusters[t], id)
	}
	return clusters
}

// ShortestPaths returns up to limit shortest paths between two entities,
// in lexicographic order of their entity ids. It returns no paths when the
// entities are not connected.
func (g *Graph) ShortestPaths(from, to int64, limit int) ([]Path, error) {
	for _, id := range []int64{from, to} {
		if _, ok := g.entities[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
		}
	}
	if limit <= 0 {
		limit = DefaultPathLimit
	}
	if from == to {
		return []Path{{EntityIDs: []int64{from}, Relationships: []string{}}}, nil
	}

	routes, _ := g.shortest().AllBetween(from, to)
	paths := make([]Path, 0, len(routes))
	for _, route := range routes {
		p := Path{
			EntityIDs:     make([]int64, len(route)),
			Relationships: make([]string, 0, len(route)-1),
		}
		for i, n := range route {
			p.EntityIDs[i] = n.ID()
			if i > 0 {
				e := g.undirected.Edge(route[i-1].ID(), n.ID()).(*edge)
				p.Relationships = append(p.Relationships, e.Relationship())
			}
		}
		paths = append(paths, p)
	}
	slices.SortFunc(paths, func(a, b Path) int { return slices.Compare(a.EntityIDs, b.EntityIDs) })
	if len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}
