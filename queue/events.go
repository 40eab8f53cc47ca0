package queue

import (
	"context"
	"log"
)

// LogResults drains worker results and logs them until ctx is done.
// Run it in its own goroutine alongside each Consume loop; it is the
// single observability sink for job lifecycle events.
func LogResults(ctx context.Context, results <-chan JobResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				return
			}
			if r.Err != nil {
				log.Printf("Job failed [%s] %s on %s (attempt %d): %v", r.JobID, r.Name, r.Queue, r.Attempts, r.Err)
				continue
			}
			log.Printf("Job completed [%s] %s on %s", r.JobID, r.Name, r.Queue)
		}
	}
}
