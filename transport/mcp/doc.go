// Package mcp provides the Model Context Protocol interface of the robot
// simulator.
//
// The Client is a thin proxy: every tool call becomes one or more REST
// calls against a running API server, and the JSON answers are rendered as
// text for the agent. Tool arguments arrive as loosely typed JSON and are
// coerced with spf13/cast, so "2", 2 and 2.0 are all accepted as integers.
//
// MCP Tools:
//   - create_session, list_sessions: session management
//   - robot_state: grid, heading, counters and decision aids
//   - press_key, send_commands: interactive driving
//   - set_edit_mode, toggle_obstacle: layout editing before a run
//   - reset_robot, step_trace: run control and inspection
//   - simulate: stateless batch run, optionally saved
//   - save_simulation, simulation_history: per-user records
//   - ask_robot: narrated answers about a session
//   - list_presets, simulator_instructions: reference
//
// Persistence tools take a user_id argument which is sent as the X-User-ID
// header.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
