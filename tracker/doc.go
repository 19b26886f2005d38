// Package tracker holds the tracker address model: syntactic validation of a
// single address, the insertion-ordered unique set that is written back to
// aria2, and the reducer that merges the addresses already configured with
// the ones pulled from every remote list.
//
// Validation is purely syntactic. No address is ever contacted.
package tracker
