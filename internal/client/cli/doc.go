// Package cli implements the keeper command tree.
//
// Every command receives the shared App, which carries the loaded config and
// the server, link and breach clients. The clients are built in the root
// command's PersistentPreRunE so that tests can pre-set fakes instead.
package cli
