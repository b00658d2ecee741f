package metrics

import (
	"strconv"
	"time"

	"github.com/roostlabs/roost/pkg/types"
)

// Source is the read surface the collector polls for inventory gauges.
// Satisfied by the storage layer and by the manager.
type Source interface {
	ListWorkloads() ([]*types.Workload, error)
	ListUnits(namespace, workload string) ([]*types.Unit, error)
	ListBindings(namespace, workload string) ([]*types.VolumeBinding, error)
}

// RaftSource exposes consensus state for the Raft gauges. Optional;
// leave nil on nodes that do not carry the replicated log.
type RaftSource interface {
	IsLeader() bool
	RaftStats() map[string]string
}

// Collector periodically refreshes the inventory and Raft gauges from
// the store.
type Collector struct {
	source Source
	raft   RaftSource
	stopCh chan struct{}
}

// NewCollector creates a collector over the given source. raft may be nil.
func NewCollector(source Source, raft RaftSource) *Collector {
	return &Collector{
		source: source,
		raft:   raft,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting every 15 seconds until Stop is called.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectInventory()
	c.collectRaft()
}

func (c *Collector) collectInventory() {
	workloads, err := c.source.ListWorkloads()
	if err != nil {
		return
	}
	WorkloadsTotal.Set(float64(len(workloads)))

	unitCounts := map[types.UnitPhase]int{
		types.UnitPending:     0,
		types.UnitRunning:     0,
		types.UnitReady:       0,
		types.UnitFailed:      0,
		types.UnitTerminating: 0,
		types.UnitTerminated:  0,
	}
	bindingCounts := map[types.BindingPhase]int{
		types.BindingBound:    0,
		types.BindingReleased: 0,
	}

	for _, w := range workloads {
		units, err := c.source.ListUnits(w.Namespace, w.Name)
		if err != nil {
			continue
		}
		for _, u := range units {
			unitCounts[u.Phase]++
		}
		bindings, err := c.source.ListBindings(w.Namespace, w.Name)
		if err != nil {
			continue
		}
		for _, b := range bindings {
			bindingCounts[b.Phase]++
		}
	}

	// Zero counts are written too, so phases that emptied out do not
	// keep reporting their last value.
	for phase, count := range unitCounts {
		UnitsTotal.WithLabelValues(string(phase)).Set(float64(count))
	}
	for phase, count := range bindingCounts {
		BindingsTotal.WithLabelValues(string(phase)).Set(float64(count))
	}
}

func (c *Collector) collectRaft() {
	if c.raft == nil {
		return
	}
	if c.raft.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	stats := c.raft.RaftStats()
	if stats == nil {
		return
	}
	if v, ok := parseStat(stats, "last_log_index"); ok {
		RaftLogIndex.Set(v)
	}
	if v, ok := parseStat(stats, "applied_index"); ok {
		RaftAppliedIndex.Set(v)
	}
}

func parseStat(stats map[string]string, key string) (float64, bool) {
	s, ok := stats[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(v), true
}
