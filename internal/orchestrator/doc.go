// Package orchestrator wires the vehicle connection, the report channels and
// the four worker groups together, runs the main loop that consumes worker
// reports, and shuts the fleet down in order:
//
//	exit.Request -> DrainAndUnblock every channel -> Join every group
//	-> Terminate and rejoin hung groups -> residual drain -> exit.Clear
//
// Workers run on a context detached from the caller's; cancelling the Run
// context only ends the main loop. Workers stop through the exit signal, or
// through Terminate when they miss the join timeout.
package orchestrator
