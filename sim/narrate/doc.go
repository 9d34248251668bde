// Package narrate answers questions about a robot in plain language.
//
// A Snapshot is a copy of the robot's position, heading, obstacles, command
// history and counters. Prompt renders it into the text an assistant model
// would receive; LocalNarrator answers common questions (where am I, what is
// ahead, what next, obstacles, stats) directly from the snapshot.
//
// Narrators only read snapshots. Commands suggested in an answer are never
// executed on the engine.
package narrate
