// Package process runs and supervises ffmpeg-style subprocesses.
//
// Process wraps a single os/exec command:
//   - stdin/stdout wired straight to caller supplied files (pipe ends)
//   - stderr either discarded or drained line by line through a LogParser
//   - Stop sends a signal, waits a grace period, then SIGKILLs
//
// Supervisor keeps one Process alive, recreating it after a fixed backoff
// whenever it exits while the supervisor is still running. Each nonzero
// exit is reported to an OnCrash hook.
package process
