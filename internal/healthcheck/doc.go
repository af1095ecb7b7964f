// Package healthcheck keeps the load samples of the known backends fresh.
// Each watched backend is sampled on a fixed interval; a backend whose load
// cannot be read is reported down, and changes of its selection tier are
// logged.
package healthcheck
