// Package scenario parses the text files the CLI runs in batch mode.
//
// A scenario lists obstacles, a command string and what the final state
// should be:
//
//	// corner run
//	obstacle (1, 1)
//	obstacle (2, 2)
//	commands "DAAAA"
//	expect (4, 0) East
//	expect successes 5
//
// Comments start with //. Check reports every failed expectation, not just
// the first.
package scenario
