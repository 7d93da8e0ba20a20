// Package main provides the entry point for heapsight.
//
// heapsight attaches to a process that embeds a CPython 2.7 runtime, or to
// a heap image saved from one, and locates the application's UI root
// objects:
//
//   - attach / locate: run the full resolution chain and print the report
//   - tree: print the UI tree under each root instance
//   - dict / typename: decode single objects by address
//   - image save / info: persist and inspect heap images
//   - watch: re-attach on an interval and serve Prometheus metrics
//
// Usage:
//
//	heapsight attach --pid 4242
//	heapsight -o json tree --image ./heapsight-image --max-depth 8
//	heapsight image save --pid 4242 --dir ./heapsight-image
package main
