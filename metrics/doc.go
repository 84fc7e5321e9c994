// Package metrics collects measurements of consensus runs.
//
// Measurements are taken by handlers registered on the event loop of each replica.
// A Recorder exports them through Prometheus collectors and writes them as JSON records
// that the plotting package can read back.
package metrics
