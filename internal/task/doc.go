// Package task contains the background machinery of the generation
// pipeline: the in-process continuation runner, the polling queue worker
// that claims image tasks and jobs, the image task executor shared with the
// admin surface, the job handler registry, and the stuck-task reaper.
package task
