// Package service provides the business logic layer for the robot simulator.
//
// The service sits between the transports (HTTP, WebSocket, MCP, CLI) and the
// engine. It owns no state of its own: sessions come from a SessionManager,
// presets from a PresetManager and saved runs from a records.Store.
//
// Two ways to run commands are offered. The interactive path (PressKey,
// PressKeys, ApplyCommands) mutates a session's engine one step at a time.
// The batch path (Simulate) runs a whole command string from the start state
// and never touches a session. Both go through the same step function, so a
// session trace and the batch replay of its history are identical;
// SaveSimulation checks that before storing anything.
//
// Usage:
//
//	presets, _ := config.NewManager("configs")
//	svc := service.NewSimulatorService(session.NewManager(), presets, nil, nil)
//
//	info, err := svc.CreateSession(ctx, "classic")
//	res, err := svc.ApplyCommands(ctx, info.ID, "DAAI")
//	saved, err := svc.SaveSimulation(ctx, userID, info.ID)
package service
