// Package mavlink defines the narrow view of a MAVLink connection the
// workers use: receive a message of a given type with a timeout, and send a
// message. Wire encoding lives behind the Connection interface; package sim
// provides an in-memory vehicle for runs without hardware.
package mavlink
