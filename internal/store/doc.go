// Package store defines the persistence contract the simulation core runs
// against.
//
// Two implementations exist: store/postgres for real deployments and
// store/memstore for tests and single-process experiments. Everything that
// mutates world state goes through InTx so a tick either commits whole or
// not at all; lease operations deliberately sit outside InTx because each
// one must be a single independent round trip.
package store
