// Package audit records who did what through the relay: device commands
// (published, rejected or failed) and account activity.
//
// Entries go through a Recorder, which queues them and writes them one at a
// time so request handlers and the command path never wait on SQLite.
package audit
