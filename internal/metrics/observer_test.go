package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/osintnexus/internal/engine"
	"github.com/nao1215/osintnexus/internal/model"
)

func moduleRun(o *Observer, name string, status model.Status, elapsed time.Duration) {
	o.Notify(engine.Event{Type: engine.EventModuleStarted, Module: name})
	o.Notify(engine.Event{
		Type:   engine.EventModuleCompleted,
		Module: name,
		Result: &model.ScanResult{Module: name, Status: status, Elapsed: elapsed},
	})
	o.Notify(engine.Event{Type: engine.EventModuleFinished, Module: name})
}

func TestObserverCountsModuleRuns(t *testing.T) {
	t.Parallel()

	o := NewObserver()
	moduleRun(o, "DNS Resolver", model.StatusCompleted, 20*time.Millisecond)
	moduleRun(o, "DNS Resolver", model.StatusCompleted, 30*time.Millisecond)
	moduleRun(o, "Shodan Lookup", model.StatusFailed, time.Millisecond)
	o.Notify(engine.Event{Type: engine.EventScanCompleted})

	assert.InDelta(t, 2, testutil.ToFloat64(o.moduleRuns.WithLabelValues("DNS Resolver", "completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.moduleRuns.WithLabelValues("Shodan Lookup", "failed")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(o.running), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.scans), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(o.moduleTime))
}

func TestObserverCountsDiscoveries(t *testing.T) {
	t.Parallel()

	o := NewObserver()
	domain := model.NewEntity(model.EntityDomain, "example.com")
	ip := model.NewEntity(model.EntityIP, "192.0.2.1")
	o.Notify(engine.Event{Type: engine.EventEntityDiscovered, Entity: &domain})
	o.Notify(engine.Event{Type: engine.EventEntityDiscovered, Entity: &ip})
	o.Notify(engine.Event{Type: engine.EventEntityDiscovered})
	o.Notify(engine.Event{
		Type:         engine.EventConnectionDiscovered,
		Source:       &domain,
		Target:       &ip,
		Relationship: "resolves_to",
	})
	o.Notify(engine.Event{Type: engine.EventWorkflowFinished, Machine: "Email Pivot", Success: true})
	o.Notify(engine.Event{Type: engine.EventModuleCompleted})

	expected := `
# HELP osintnexus_entities_discovered_total Newly stored entities by type.
# TYPE osintnexus_entities_discovered_total counter
osintnexus_entities_discovered_total{entity_type="domain"} 1
osintnexus_entities_discovered_total{entity_type="ip"} 1
`
	require.NoError(t, testutil.CollectAndCompare(o.entities, strings.NewReader(expected)))
	assert.InDelta(t, 1, testutil.ToFloat64(o.connections.WithLabelValues("resolves_to")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.workflows.WithLabelValues("Email Pivot", "true")), 0)
	assert.Equal(t, 0, testutil.CollectAndCount(o.moduleRuns))
}

func TestWriteToTextfile(t *testing.T) {
	t.Parallel()

	o := NewObserver()
	moduleRun(o, "Email Split", model.StatusCompleted, time.Millisecond)

	path := filepath.Join(t.TempDir(), "osintnexus.prom")
	require.NoError(t, o.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `osintnexus_module_runs_total{module="Email Split",status="completed"} 1`)

	err = o.WriteToTextfile(filepath.Join(t.TempDir(), "missing", "out.prom"))
	assert.Error(t, err)
}
