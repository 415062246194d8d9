// Package report implements the two report families produced from the
// per-store files — the monthly product sales/stock history and the
// branch-level stockout ("rupture") indicators — together with the batch
// orchestrator that runs them over many files and the exporter that writes
// the consolidated result.
package report

// EventType tags the variants of the one-way worker-to-host event stream.
type EventType int

const (
	// EventProgress reports one completed step of a run.
	EventProgress EventType = iota
	// EventDone terminates a successful run's stream.
	EventDone
	// EventFailed terminates a failed run's stream and carries the error.
	EventFailed
)

// Event is one discrete signal from a running batch to whatever hosts it.
// Progress events carry a strictly increasing Index; the final export event
// of a run always has the highest index.
type Event struct {
	Type    EventType
	Index   int
	Message string
	Err     error
}

// EventFunc receives events in emission order. Implementations must not
// block for long; they run on the worker executing the batch.
type EventFunc func(Event)
