// Package domain defines the core types of the radar-gauge bias
// estimation pipeline: minute-resolution timestamps, grid extents,
// colocated radar-gauge observation pairs, and the shared error
// taxonomy. It has no I/O; persistence and collection logic live in
// the packages that consume these types.
package domain
