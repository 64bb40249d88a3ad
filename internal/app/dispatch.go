package app

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ayusman/gesturepad/internal/config"
	"github.com/ayusman/gesturepad/internal/plugin"
	"github.com/ayusman/gesturepad/internal/store"
)

// dispatchQueueSize bounds the actions waiting for the worker. The poll
// loop blocks when it is full.
const dispatchQueueSize = 64

// bindingKey selects the bindings of one channel edge.
type bindingKey struct {
	channel string
	kind    store.EdgeKind
}

// bindingTable indexes bindings by channel edge, keeping file order.
type bindingTable struct {
	byEdge map[bindingKey][]config.BindingConfig
}

func newBindingTable(bindings []config.BindingConfig) *bindingTable {
	t := &bindingTable{byEdge: make(map[bindingKey][]config.BindingConfig)}
	for _, b := range bindings {
		on := b.On
		if on == "" {
			on = config.OnRise
		}
		key := bindingKey{channel: b.Channel, kind: store.EdgeKind(on)}
		t.byEdge[key] = append(t.byEdge[key], b)
	}
	return t
}

func (t *bindingTable) lookup(channel string, kind store.EdgeKind) []config.BindingConfig {
	return t.byEdge[bindingKey{channel: channel, kind: kind}]
}

// job is one bound action to run.
type job struct {
	binding config.BindingConfig
	event   Event
	runner  *runner
}

// dispatcher runs jobs one at a time in arrival order, so a key release
// never overtakes the press it belongs to.
type dispatcher struct {
	jobs chan job
	done chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		jobs: make(chan job, dispatchQueueSize),
		done: make(chan struct{}),
	}
}

func (d *dispatcher) enqueue(j job) {
	d.jobs <- j
}

// close stops accepting jobs; run drains the queue and returns.
func (d *dispatcher) close() {
	close(d.jobs)
}

func (d *dispatcher) run() {
	defer close(d.done)
	for j := range d.jobs {
		execute(j)
	}
}

// execute resolves and runs the plugin of one job. Failures are logged.
func execute(j job) {
	b := j.binding
	plug, err := j.runner.plugins.Resolve(b.Plugin, b.Action)
	if err != nil {
		log.Printf("Binding %s/%s on %s: %v", b.Plugin, b.Action, j.event.Channel, err)
		return
	}

	req := &plugin.Request{
		Action:  b.Action,
		Channel: j.event.Channel,
		Edge:    string(j.event.Kind),
	}
	if len(b.Params) > 0 {
		params, err := json.Marshal(b.Params)
		if err != nil {
			log.Printf("Binding %s/%s on %s: encode params: %v", b.Plugin, b.Action, j.event.Channel, err)
			return
		}
		req.Params = params
	}

	resp, err := j.runner.exec.Execute(context.Background(), plug, req)
	if err != nil {
		log.Printf("Plugin %s %s failed: %v", b.Plugin, b.Action, err)
		return
	}
	if !resp.Success {
		log.Printf("Plugin %s %s returned error: %s", b.Plugin, b.Action, resp.Error)
	}
}
