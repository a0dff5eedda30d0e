package analytics

import (
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/osintnexus/internal/model"
)

func entity(id int64, entityType, value string) model.Entity {
	e := model.NewEntity(entityType, value)
	e.ID = id
	e.ProjectID = 1
	return e
}

func conn(source, target int64, relationship string) model.Connection {
	return model.Connection{ProjectID: 1, SourceID: source, TargetID: target, Relationship: relationship, Weight: 1}
}

// starExport is a domain linked to four entities of different types.
func starExport() *model.ProjectExport {
	return &model.ProjectExport{
		Project: model.Project{ID: 1, Name: "acme"},
		Entities: []model.Entity{
			entity(1, model.EntityDomain, "example.com"),
			entity(2, model.EntityIP, "192.0.2.1"),
			entity(3, model.EntityEmail, "alice@example.com"),
			entity(4, model.EntityURL, "https://example.com/"),
			entity(5, model.EntityUsername, "alice"),
		},
		Connections: []model.Connection{
			conn(1, 2, "resolves_to"),
			conn(1, 3, "hosts_mailbox"),
			conn(1, 4, "hosts_page"),
			conn(1, 5, "registered_by"),
		},
	}
}

// clustersExport holds two triangles and one isolated entity.
func clustersExport() *model.ProjectExport {
	return &model.ProjectExport{
		Entities: []model.Entity{
			entity(1, model.EntityDomain, "example.com"),
			entity(2, model.EntityDomain, "mail.example.com"),
			entity(3, model.EntityIP, "192.0.2.1"),
			entity(4, model.EntityEmail, "bob@example.org"),
			entity(5, model.EntityUsername, "bob"),
			entity(6, model.EntityUsername, "bobby"),
			entity(7, model.EntityPhone, "+14155550100"),
		},
		Connections: []model.Connection{
			conn(1, 2, "parent_of"),
			conn(2, 3, "resolves_to"),
			conn(3, 1, "reverse_resolves_to"),
			conn(4, 5, "local_part_of"),
			conn(5, 6, "alias_of"),
			conn(6, 4, "uses"),
		},
	}
}

func centralityOf(t *testing.T, g *Graph, id int64) Centrality {
	t.Helper()
	for _, c := range g.Centrality() {
		if c.Entity.ID == id {
			return c
		}
	}
	t.Fatalf("no centrality for entity %d", id)
	return Centrality{}
}

func TestFromExport(t *testing.T) {
	t.Parallel()

	export := starExport()
	export.Entities = append(export.Entities, entity(1, model.EntityDomain, "duplicate"))
	export.Connections = append(export.Connections,
		conn(1, 2, "resolves_to"),
		conn(1, 2, "hosts"),
		conn(1, 1, "self"),
		conn(1, 99, "dangling"),
	)

	g := FromExport(export)
	assert.Equal(t, 5, g.Len())

	e, ok := g.Entity(1)
	require.True(t, ok)
	assert.Equal(t, "example.com", e.Value)

	stats := g.Statistics()
	assert.Equal(t, 4, stats.Connections)

	paths, err := g.ShortestPaths(1, 2, 0)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"resolves_to, hosts"}, paths[0].Relationships)
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	t.Run("connected star", func(t *testing.T) {
		t.Parallel()

		stats := FromExport(starExport()).Statistics()
		assert.Equal(t, 5, stats.Entities)
		assert.Equal(t, 4, stats.Connections)
		assert.InDelta(t, 0.4, stats.Density, 1e-9)
		assert.Equal(t, 1, stats.Components)
		assert.True(t, stats.Connected)
		assert.InDelta(t, 0, stats.AvgClustering, 1e-9)
		require.NotNil(t, stats.Diameter)
		assert.Equal(t, 2, *stats.Diameter)
	})

	t.Run("disconnected clusters", func(t *testing.T) {
		t.Parallel()

		stats := FromExport(clustersExport()).Statistics()
		assert.Equal(t, 3, stats.Components)
		assert.False(t, stats.Connected)
		assert.Nil(t, stats.Diameter)
		assert.InDelta(t, 6.0/7.0, stats.AvgClustering, 1e-9)
	})

	t.Run("empty graph", func(t *testing.T) {
		t.Parallel()

		stats := FromExport(&model.ProjectExport{}).Statistics()
		assert.Equal(t, Statistics{}, stats)
	})
}

func TestCentrality(t *testing.T) {
	t.Parallel()

	g := FromExport(starExport())
	center := centralityOf(t, g, 1)
	leaf := centralityOf(t, g, 2)

	assert.InDelta(t, 1.0, center.Degree, 1e-9)
	assert.InDelta(t, 0.25, leaf.Degree, 1e-9)
	assert.Greater(t, center.Betweenness, bridgeThreshold)
	assert.InDelta(t, 0, leaf.Betweenness, 1e-9)
	assert.InDelta(t, 1.0, center.Closeness, 1e-9)
	assert.InDelta(t, 4.0/7.0, leaf.Closeness, 1e-9)
	assert.Greater(t, leaf.PageRank, center.PageRank)

	var total float64
	for _, c := range g.Centrality() {
		total += c.PageRank
	}
	assert.InDelta(t, 1.0, total, 1e-3)
}

func TestTopEntities(t *testing.T) {
	t.Parallel()

	g := FromExport(starExport())

	top := g.TopEntities(MetricDegree, 2)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].Entity.ID)
	assert.Equal(t, int64(2), top[1].Entity.ID, "ties keep entity id order")

	assert.Len(t, g.TopEntities(MetricCloseness, 0), 5)
}

func TestParseMetric(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"degree", "betweenness", "closeness", "pagerank"} {
		m, err := ParseMetric(name)
		require.NoError(t, err)
		assert.Equal(t, Metric(name), m)
	}
	_, err := ParseMetric("eigenvector")
	assert.Error(t, err)
}

func TestCommunities(t *testing.T) {
	t.Parallel()

	communities, modularity := FromExport(clustersExport()).Communities()
	require.Len(t, communities, 3)

	assert.Equal(t, []int64{1, 2, 3}, communities[0].EntityIDs)
	assert.Equal(t, "Community 1 (domain)", communities[0].Label)
	assert.InDelta(t, 1.0, communities[0].Density, 1e-9)
	assert.Equal(t, []int64{4, 5, 6}, communities[1].EntityIDs)
	assert.Equal(t, model.EntityUsername, communities[1].DominantType)
	assert.Equal(t, []int64{7}, communities[2].EntityIDs)
	assert.Greater(t, modularity, 0.0)

	t.Run("no connections", func(t *testing.T) {
		t.Parallel()

		export := clustersExport()
		export.Connections = nil
		communities, modularity := FromExport(export).Communities()
		assert.Len(t, communities, 7)
		assert.Zero(t, modularity)
	})
}

func TestAnomalies(t *testing.T) {
	t.Parallel()

	kinds := func(anomalies []Anomaly, id int64) []string {
		var out []string
		for _, a := range anomalies {
			if a.Entity.ID == id {
				out = append(out, a.Kind)
			}
		}
		return out
	}

	t.Run("star center is a hub and a bridge", func(t *testing.T) {
		t.Parallel()

		g := FromExport(starExport())
		center := kinds(g.Anomalies(DefaultSensitivity), 1)
		assert.Contains(t, center, AnomalyBridge)
		assert.Contains(t, center, AnomalyHub)
		assert.Contains(t, kinds(g.Anomalies(1.5), 1), AnomalyOutlier)
		assert.Empty(t, kinds(g.Anomalies(DefaultSensitivity), 2))
	})

	t.Run("isolated entity", func(t *testing.T) {
		t.Parallel()

		anomalies := FromExport(clustersExport()).Anomalies(DefaultSensitivity)
		assert.Equal(t, []string{AnomalyIsolated}, kinds(anomalies, 7))
		for i := 1; i < len(anomalies); i++ {
			assert.GreaterOrEqual(t, anomalies[i-1].Score, anomalies[i].Score)
		}
	})
}

func TestClusters(t *testing.T) {
	t.Parallel()

	clusters := FromExport(clustersExport()).Clusters()
	assert.Equal(t, map[string][]int64{
		model.EntityDomain:   {1, 2},
		model.EntityIP:       {3},
		model.EntityEmail:    {4},
		model.EntityUsername: {5, 6},
		model.EntityPhone:    {7},
	}, clusters)
}

func TestShortestPaths(t *testing.T) {
	t.Parallel()

	export := &model.ProjectExport{
		Entities: []model.Entity{
			entity(1, model.EntityEmail, "alice@example.com"),
			entity(2, model.EntityUsername, "alice"),
			entity(3, model.EntityDomain, "example.com"),
			entity(4, model.EntityPerson, "Alice"),
			entity(5, model.EntityURL, "https://github.com/alice"),
			entity(6, model.EntityPhone, "+14155550100"),
		},
		Connections: []model.Connection{
			conn(2, 1, "local_part_of"),
			conn(1, 3, "hosted_on"),
			conn(2, 4, "used_by"),
			conn(3, 4, "owned_by"),
			conn(4, 5, "has_profile"),
		},
	}
	g := FromExport(export)

	paths, err := g.ShortestPaths(1, 5, 0)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, []int64{1, 2, 4, 5}, paths[0].EntityIDs)
	assert.Equal(t, []string{"local_part_of", "used_by", "has_profile"}, paths[0].Relationships)
	assert.Equal(t, []int64{1, 3, 4, 5}, paths[1].EntityIDs)
	assert.Equal(t, 3, paths[1].Len())

	limited, err := g.ShortestPaths(1, 5, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := g.ShortestPaths(1, 6, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	self, err := g.ShortestPaths(3, 3, 0)
	require.NoError(t, err)
	require.Len(t, self, 1)
	assert.Zero(t, self[0].Len())

	_, err = g.ShortestPaths(1, 42, 0)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	report := FromExport(starExport()).Analyze(Options{Top: 3, Metric: MetricDegree})
	assert.Equal(t, MetricDegree, report.Metric)
	require.Len(t, report.Top, 3)
	assert.Equal(t, int64(1), report.Top[0].Entity.ID)
	assert.Equal(t, 5, report.Statistics.Entities)
	assert.NotEmpty(t, report.Communities)
	assert.NotEmpty(t, report.Anomalies)
	assert.Len(t, report.Clusters, 5)

	defaults := FromExport(starExport()).Analyze(Options{})
	assert.Equal(t, MetricPageRank, defaults.Metric)
	assert.Len(t, defaults.Top, 5)
}

func TestWriteGraphML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, FromExport(starExport()).WriteGraphML(&buf, "acme"))
	out := buf.String()

	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, `edgedefault="directed"`)
	assert.Contains(t, out, `<data key="relationship">resolves_to</data>`)

	var doc graphML
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "acme", doc.Graph.ID)
	assert.Len(t, doc.Graph.Nodes, 5)
	require.Len(t, doc.Graph.Edges, 4)
	assert.Equal(t, "n1", doc.Graph.Edges[0].Source)
	assert.Equal(t, "n2", doc.Graph.Edges[0].Target)
}

func TestWriteDOT(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, FromExport(starExport()).WriteDOT(&buf, "acme"))
	out := buf.String()

	assert.Contains(t, out, "digraph acme {")
	assert.Contains(t, out, "1 -> 2")
	assert.Contains(t, out, `"resolves_to"`)
	assert.Contains(t, out, `"example.com"`)
}
