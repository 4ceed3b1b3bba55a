// Package signal provides the cooperative shutdown flag shared by the orchestrator and
// every worker. The orchestrator is the single writer (Request, Clear); workers only
// poll IsRequested at each loop iteration.
package signal
