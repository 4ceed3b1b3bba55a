// Package queue implements the bounded FIFO channels that connect workers.
//
// A Channel is bounded by its capacity (capacity <= 0 opts out of backpressure),
// supports blocking and non-blocking Put/Get, and has a drain operation used at
// shutdown. Every blocking wait is sliced into short polls that re-check the
// bound exit signal, so a producer parked on a full channel or a consumer parked
// on an empty one always returns once exit is requested.
//
// Two backends share the contract:
//
//   - Local: in-process, mutex plus a broadcast channel that is replaced on every
//     state change.
//   - Redis: a Redis list; capacity and drain are enforced atomically by Lua
//     scripts, items are JSON encoded. Handles in different processes that use
//     the same key see the same queue.
package queue
