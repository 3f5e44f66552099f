// Package pipeline runs the per-file stages of an obfuscation build.
//
// A Run is an ordered list of named stages over one source file:
//   - prep -> transpile -> flag_setter -> string_literal_obfuscator ->
//     source_code_injector -> compile
//
// Each executed stage gets its own <name>_stdout.txt and <name>_stderr.txt in
// the run's log directory; the process streams point at them only while the
// stage body runs. Errors and panics raised by a stage body are written to its
// stderr log and never escape the Run. The first failure is permanent: every
// later stage is recorded with executed=false so the report can tell
// "NOT EXECUTED" apart from "executed but failed".
//
// Stages are strictly sequential. Stream redirection is process-global, so
// concurrent Runs belong in separate worker processes.
package pipeline
