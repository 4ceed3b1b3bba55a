// Package worker supervises homogeneous groups of workers.
//
// A GroupSpec describes count identical workers sharing an entry function,
// fixed arguments, input and output channels, and the exit signal. The
// Supervisor runs every worker as a goroutine from an ants pool and returns a
// RunningGroup, which is joined with a per-worker timeout. Workers that do not
// exit in time are reported as hung; Terminate cancels their context as a
// last resort.
//
// Workers stop cooperatively: an entry function is expected to poll the exit
// signal every iteration (see Loop) and return after its in-flight unit of
// work.
package worker
