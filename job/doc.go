// Package job defines the durable representation of a unit of work
// managed by kestrelq.
//
// A Job is the authoritative record of one submitted piece of work: its
// type, payload, lifecycle status, retry bookkeeping and timing. Job
// values returned by a store.Store are snapshots of storage state;
// mutating them in place does not change the underlying record. State
// transitions are performed exclusively through store.Store methods.
package job
