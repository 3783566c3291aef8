// ABOUTME: Bounded queue package
// ABOUTME: Generic blocking FIFO used between audio producers and sinks
// Package queue provides a generic bounded FIFO with blocking put/take,
// a minimum-fill wait, oldest-first eviction and worker lifecycle
// bookkeeping.
//
// Example:
//
//	q := queue.New[*audio.Message](2, queue.WithEvict(func(m *audio.Message) { m.Release() }))
//	q.Start(1, func(ctx context.Context) {
//	    for {
//	        msg, _, ok := q.Take()
//	        if !ok {
//	            return
//	        }
//	        play(msg)
//	    }
//	})
//	q.Put(msg, true)
//	q.SetTerminateAndWait()
package queue
