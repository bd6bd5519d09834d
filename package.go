// Package ignis provides the event taxonomy, filter composition, and
// handler-lifetime machinery for a generic iterative execution engine: a
// loop that repeats "get batch, process batch" across epochs.
//
// # Quick Start
//
//	engine := ignis.New(func(ctx context.Context, e *ignis.Engine, batch any) (any, error) {
//	    return train(batch)
//	})
//
//	// Log every 10th iteration.
//	everyTenth, _ := ignis.IterationCompleted.Every(10)
//	handle, _ := engine.AddEventHandler(everyTenth, ignis.NewHandler("progress",
//	    func(ctx context.Context, e *ignis.Engine) error {
//	        fmt.Printf("iteration %d\n", e.State().Iteration)
//	        return nil
//	    }))
//	defer handle.Remove()
//
//	state, err := engine.Run(ctx, batches, ignis.RunOptions{MaxEpochs: 5})
//
// Three ideas carry the package:
//
//   - [EventKind] names the loop milestones external code can hook into,
//     and [FilteredEvent] restricts a hook to a computed subset of a
//     milestone's occurrences (custom predicate, every-N, exactly-once).
//     [EventGroup] registers one handler against several events at once.
//   - [State] is the shared progress record filters and handlers read.
//   - [RemovableHandle] ties a registration's lifetime to the objects that
//     created it, so it can be removed safely and exactly once.
package ignis
