package ecs

import (
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// System is the callback invoked over a contiguous row range of one
// matched table. offset and limit delimit the rows this invocation owns.
type System func(ctx Context, mt MatchedTable, offset, limit int) error

// job describes a contiguous row range within one matched table, the unit
// of work handed to a worker.
type job struct {
	mt     MatchedTable
	offset int
	limit  int
}

// Run iterates the query on the calling goroutine. Mutations issued by fn
// land in the temp stage; with auto-merge on they are folded back into
// the main stage when iteration completes.
func (w *World) Run(q *Query, fn System) error {
	tables := q.Iterate()

	w.inProgress = true
	ctx := w.Context()
	var err error
	for _, mt := range tables {
		if runErr := fn(ctx, mt, 0, mt.Table.Len()); runErr != nil {
			err = eris.Wrap(runErr, "system failed")
			break
		}
	}
	w.inProgress = false

	if w.autoMerge {
		if mergeErr := w.Merge(); mergeErr != nil && err == nil {
			err = mergeErr
		}
	}
	return err
}

// RunParallel iterates the query across the worker pool. Each worker owns
// its stage and consumes jobs from its own bounded queue; every worker's
// mutations stay isolated until merge. Iteration sees the table set as it
// existed at entry; tables created by workers become visible after merge.
func (w *World) RunParallel(q *Query, fn System) error {
	if len(w.workers) == 0 {
		return w.Run(q, fn)
	}
	tables := q.Iterate()

	w.inProgress = true
	w.parallel = true

	g := new(errgroup.Group)
	queues := make([]chan job, len(w.workers))
	for i, s := range w.workers {
		ch := make(chan job, w.cfg.MaxJobsPerWorker)
		queues[i] = ch
		stage := s
		g.Go(func() error {
			ctx := Context{world: w, stage: stage}
			// A failed system does not stop the worker from draining its
			// queue; returning early would wedge the dispatcher on the
			// bounded channel.
			var err error
			for jb := range ch {
				if err != nil || w.quitWorkers.Load() {
					continue
				}
				if runErr := fn(ctx, jb.mt, jb.offset, jb.limit); runErr != nil {
					err = eris.Wrap(runErr, "system failed")
				}
			}
			return err
		})
	}

	next := 0
	for _, mt := range tables {
		n := mt.Table.Len()
		if n == 0 {
			continue
		}
		chunk := (n + len(w.workers) - 1) / len(w.workers)
		for off := 0; off < n; off += chunk {
			limit := chunk
			if off+limit > n {
				limit = n - off
			}
			queues[next%len(queues)] <- job{mt: mt, offset: off, limit: limit}
			next++
		}
	}
	for _, ch := range queues {
		close(ch)
	}

	err := g.Wait()
	w.parallel = false
	w.inProgress = false

	if w.autoMerge {
		if mergeErr := w.Merge(); mergeErr != nil && err == nil {
			err = mergeErr
		}
	}
	return err
}
