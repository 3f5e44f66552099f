// Package processor wires the rewrite stages and the external collaborators
// into per-file pipeline runs, and fans runs for many files out over worker
// processes.
package processor
