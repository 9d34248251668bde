// Package api provides HTTP REST API handlers for the robot simulator.
//
// The api package implements:
//   - Session management endpoints
//   - Interactive driving (keys, command strings, obstacle editing)
//   - Stateless batch simulation
//   - Saved simulation records per user
//   - Preset listing and creation
//   - WebSocket upgrade handling
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create new session ({"preset": "classic"})
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/{id} - Get specific session
//   - DELETE /api/sessions/{id} - Delete session
//
// Interactive Driving:
//   - GET /api/sessions/{id}/state - Current state with decision aids
//   - POST /api/sessions/{id}/keys - {"key": "ArrowUp"} or {"keys": ["A", "D"]}
//   - POST /api/sessions/{id}/commands - {"commands": "AADA"}
//   - POST /api/sessions/{id}/edit - {"enabled": true}
//   - POST /api/sessions/{id}/obstacles/toggle - {"x": 2, "y": 1}
//   - POST /api/sessions/{id}/reset - Back to the start, new layout for random presets
//   - GET /api/sessions/{id}/trace - Step trace (?page=1&limit=20&order=desc)
//
// Persistence and Narration:
//   - POST /api/sessions/{id}/save - Save the session run (X-User-ID header)
//   - POST /api/simulate - Batch run ({"commands", "obstacles"|"preset"|"session_id"}, ?save=true)
//   - GET /api/history - Recent saved runs of the X-User-ID user (?limit=N)
//   - POST /api/sessions/{id}/narrate - {"question": "where are you?"}
//   - GET /api/sessions/{id}/narration - Greeting, snapshot and prompt for an assistant
//
// Presets:
//   - GET /api/presets - List presets
//   - GET /api/presets/{name} - Get one preset
//   - POST /api/presets - Create a preset (?name=file.yaml picks the file)
//
// WebSocket:
//   - GET /ws?session={id} - State updates for one session
//
// Error Handling:
//
// Errors are returned as JSON with a status derived from the error kind:
// 400 for invalid input, 401 without X-User-ID, 404 for unknown sessions
// or presets, 409 while a session is in edit mode and 422 for a submitted
// result that does not match its replay.
//
//	{
//	  "error": "error message"
//	}
//
// Usage:
//
//	server := api.NewServer(simulatorService, hub)
//	http.ListenAndServe(":8080", server)
package api
