// Package daemon ties the delivery services together behind a single
// lifecycle: the queue store, the staging repository, the connectivity
// monitor, the server health classifier, the upload worker, and the
// scheduler. It enforces single-instance execution with a lock file and
// exposes the operation surface the IPC layer serves to the CLI.
package daemon
