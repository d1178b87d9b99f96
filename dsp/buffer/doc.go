// Package buffer provides sample-buffer plumbing for the real-time engine:
// a reuse-friendly block buffer and a lock-free single-producer
// single-consumer ring used to mirror audio-callback input to analysis
// workers.
package buffer
