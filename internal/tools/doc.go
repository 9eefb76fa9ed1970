// Package tools provides command execution primitives shared by every
// component that shells out.
//
// Ownership boundary:
// - synchronous command execution with captured output and exit code
//
// - detached session-process launches
package tools
