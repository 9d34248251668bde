// Package session provides session management for the robot simulator.
//
// A session owns one interactive engine together with the preset that built
// it. The manager keeps sessions in memory under case-insensitive IDs and can
// mirror them to a SessionPersistence implementation so they survive a
// restart.
//
// Session Identifiers:
//
// Sessions created without an explicit ID get a random 4-character hex ID
// from crypto/rand. Explicit IDs may not contain path separators or dots.
//
// Randomness:
//
// Every session draws its obstacle layouts from its own random source, so
// resetting one session never changes the layouts another session sees.
// Tests install deterministic sources with SetRandSource.
//
// Persistence:
//
// FilePersistence writes one JSON file per session holding the preset ID and
// an engine snapshot. Loading reloads the preset and replays the stored
// commands; a file whose counters disagree with the replay is rejected.
//
// Usage:
//
//	presets, _ := config.NewManager("configs")
//	store, _ := session.NewFilePersistence("sessions", presets)
//	manager := session.NewManagerWithPersistence(store)
//	if err := manager.LoadPersistedSessions(); err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err := manager.Create("", presets.GetDefault())
package session
