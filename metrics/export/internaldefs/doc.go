// Package internaldefs holds the metric names and histogram bounds shared by
// the exporters.
//
// Counter and histogram definitions live here so the Prometheus and OTel
// exporters publish identical names. A change here changes every exporter.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
