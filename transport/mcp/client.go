package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inconshreveable/log15/v3"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/logging"
	"github.com/wricardo/robot-simulator/sim/records"
	"github.com/wricardo/robot-simulator/sim/service"
)

// userHeader carries the caller identity on persistence endpoints.
const userHeader = "X-User-ID"

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
	logger     log15.Logger
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.New("mcp"),
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Robot Simulator",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Robot Simulator - MCP Interface

This is a thin client that proxies all requests to the REST API server.

A robot starts at (0,0) facing North on a 5x5 grid with a few obstacles.
Commands: A advances one cell, I turns left, D turns right. A blocked
advance or an unknown command is counted as a failure.

AVAILABLE TOOLS:
- create_session / list_sessions: manage sessions
- robot_state: position, heading, obstacles and what is ahead
- press_key / send_commands: drive the robot of a session
- set_edit_mode / toggle_obstacle: edit the layout before the run starts
- reset_robot: back to the start (random presets draw a new layout)
- step_trace: every step of the current run
- simulate: stateless run of a command string
- save_simulation / simulation_history: persisted runs per user
- ask_robot: ask the robot a question about its situation
- list_presets: available obstacle presets
- simulator_instructions: full rules`),
	)

	// Register all tools
	c.registerTools()
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

var sessionProp = stringProp("Session ID")

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new robot session, optionally from a preset",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"preset": stringProp("Preset ID to use (optional, see list_presets)"),
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active robot sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	// Driving
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "robot_state",
		Description: "Get the robot state with the grid and decision aids",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
			},
			Required: []string{"session_id"},
		},
	}, c.handleRobotState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "press_key",
		Description: "Press one key: A/W/ArrowUp advances, I/Q/ArrowLeft turns left, D/E/ArrowRight turns right",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
				"key":        stringProp("Key name"),
				"intent":     stringProp("Brief explanation of why you press this key"),
			},
			Required: []string{"session_id", "key"},
		},
	}, c.handlePressKey)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "send_commands",
		Description: "Send a command string such as AADA. Every character is one step",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
				"commands":   stringProp("Command string of A, I and D"),
				"intent":     stringProp("Brief explanation of the plan behind these commands"),
			},
			Required: []string{"session_id", "commands"},
		},
	}, c.handleSendCommands)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "set_edit_mode",
		Description: "Turn obstacle edit mode on or off. Commands are refused while it is on",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
				"enabled": map[string]interface{}{
					"type":        "boolean",
					"description": "true to edit obstacles",
				},
			},
			Required: []string{"session_id", "enabled"},
		},
	}, c.handleSetEditMode)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "toggle_obstacle",
		Description: "Add or remove an obstacle. Needs edit mode and a run that has not started",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
				"x":          intProp("Column (0-4)"),
				"y":          intProp("Row (0-4), 0 is the north edge"),
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleToggleObstacle)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_robot",
		Description: "Return the robot to (0,0) facing North and clear the run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
			},
			Required: []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step_trace",
		Description: "Get the steps of the current run with pagination",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
				"page":       intProp("Page number (default: 1)"),
				"limit":      intProp("Steps per page (default: 20, max: 100)"),
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Oldest first (asc) or newest first (desc, default)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStepTrace)

	// Batch and persistence
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "simulate",
		Description: "Run a command string from the start without touching any session. Give at most one of obstacles, preset or session_id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"commands": stringProp("Command string"),
				"obstacles": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"x": map[string]interface{}{"type": "integer"},
							"y": map[string]interface{}{"type": "integer"},
						},
					},
					"description": "Explicit obstacle cells",
				},
				"preset":     stringProp("Preset ID for the layout"),
				"session_id": stringProp("Use the layout of this session"),
				"save": map[string]interface{}{
					"type":        "boolean",
					"description": "Save the result (needs user_id)",
				},
				"user_id": stringProp("User the result is saved for"),
			},
			Required: []string{"commands"},
		},
	}, c.handleSimulate)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "save_simulation",
		Description: "Save the current run of a session for a user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
				"user_id":    stringProp("User to save for"),
			},
			Required: []string{"session_id", "user_id"},
		},
	}, c.handleSaveSimulation)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "simulation_history",
		Description: "List the most recent saved runs of a user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": stringProp("User ID"),
				"limit":   intProp("Number of records (default: 10)"),
			},
			Required: []string{"user_id"},
		},
	}, c.handleSimulationHistory)

	// Narration and presets
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "ask_robot",
		Description: "Ask the robot about its position, the obstacles or what to do next",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp,
				"question":   stringProp("Question for the robot"),
			},
			Required: []string{"session_id", "question"},
		},
	}, c.handleAskRobot)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_presets",
		Description: "List available obstacle presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPresets)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "simulator_instructions",
		Description: "Get the complete rules of the simulator",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	return c.apiCallAs(ctx, "", method, path, body, result)
}

// apiCallAs performs an API call on behalf of userID. An empty userID sends
// no identity header.
func (c *Client) apiCallAs(ctx context.Context, userID, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(userHeader, userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg := cast.ToString(errResp["error"]); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	body := map[string]string{}
	if preset := cast.ToString(args["preset"]); preset != "" {
		body["preset"] = preset
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		line := fmt.Sprintf("- %s (Preset: %s, Created: %s)", s.ID, s.PresetName, s.CreatedAt.Format("15:04:05"))
		if s.State != nil {
			line += fmt.Sprintf(" at %s facing %s", s.State.Position, s.State.Heading)
		}
		result.WriteString(line + "\n")
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleRobotState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := cast.ToString(arguments(request)["session_id"])

	var state service.StateView
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatState(&state)), nil
}

func (c *Client) handlePressKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID := cast.ToString(args["session_id"])
	key := cast.ToString(args["key"])

	// The intent argument is only for the caller's reasoning
	c.logger.Debug("press_key", "session", sessionID, "key", key, "intent", cast.ToString(args["intent"]))

	var result service.KeyResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/keys"), map[string]string{"key": key}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatKeyResult(&result)), nil
}

func (c *Client) handleSendCommands(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID := cast.ToString(args["session_id"])
	commands := cast.ToString(args["commands"])

	c.logger.Debug("send_commands", "session", sessionID, "commands", commands, "intent", cast.ToString(args["intent"]))

	var result service.CommandsResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/commands"), map[string]string{"commands": commands}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatCommandsResult(&result)), nil
}

func (c *Client) handleSetEditMode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID := cast.ToString(args["session_id"])
	enabled, err := cast.ToBoolE(args["enabled"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("enabled must be a boolean: %v", err)), nil
	}

	var state service.StateView
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/edit"), map[string]bool{"enabled": enabled}, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	mode := "off"
	if state.EditMode {
		mode = "on"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Edit mode %s\n\n%s", mode, formatState(&state))), nil
}

func (c *Client) handleToggleObstacle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID := cast.ToString(args["session_id"])
	x, errX := cast.ToIntE(args["x"])
	y, errY := cast.ToIntE(args["y"])
	if errX != nil || errY != nil {
		return mcp.NewToolResultError("x and y must be integers"), nil
	}

	var result service.ToggleResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/obstacles/toggle"), map[string]int{"x": x, "y": y}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var text string
	switch {
	case !result.Applied:
		text = fmt.Sprintf("✗ Toggle at %s ignored: %s", result.Position, result.Reason)
	case result.Present:
		text = fmt.Sprintf("✓ Obstacle placed at %s", result.Position)
	default:
		text = fmt.Sprintf("✓ Obstacle removed from %s", result.Position)
	}
	return mcp.NewToolResultText(text + "\n\n" + formatState(result.State)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := cast.ToString(arguments(request)["session_id"])

	var response struct {
		Message string             `json:"message"`
		State   *service.StateView `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", response.Message, formatState(response.State))), nil
}

func (c *Client) handleStepTrace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID := cast.ToString(args["session_id"])

	params := url.Values{}
	if page := cast.ToInt(args["page"]); page > 0 {
		params.Set("page", fmt.Sprint(page))
	}
	if limit := cast.ToInt(args["limit"]); limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if order := cast.ToString(args["order"]); order != "" {
		params.Set("order", order)
	}

	path := sessionPath(sessionID, "/trace")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var trace service.TraceResponse
	if err := c.apiCall(ctx, "GET", path, nil, &trace); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTrace(&trace)), nil
}

func (c *Client) handleSimulate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	req := service.SimulateRequest{
		Commands:  cast.ToString(args["commands"]),
		Preset:    cast.ToString(args["preset"]),
		SessionID: cast.ToString(args["session_id"]),
	}
	if raw, ok := args["obstacles"]; ok && raw != nil {
		obstacles, err := toPositions(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.Obstacles = obstacles
	}

	path := "/api/simulate"
	userID := cast.ToString(args["user_id"])
	if cast.ToBool(args["save"]) {
		path += "?save=true"

		var saved service.SaveResult
		if err := c.apiCallAs(ctx, userID, "POST", path, req, &saved); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatSaveResult(&saved)), nil
	}

	var result engine.SimulationResult
	if err := c.apiCall(ctx, "POST", path, req, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatResult(&result)), nil
}

// toPositions accepts [{"x":1,"y":2}] as well as [[1,2]].
func toPositions(raw interface{}) ([]engine.Position, error) {
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("obstacles must be an array: %w", err)
	}

	positions := make([]engine.Position, 0, len(items))
	for i, item := range items {
		if m, err := cast.ToStringMapE(item); err == nil {
			x, errX := cast.ToIntE(m["x"])
			y, errY := cast.ToIntE(m["y"])
			if errX != nil || errY != nil {
				return nil, fmt.Errorf("obstacle %d: x and y must be integers", i)
			}
			positions = append(positions, engine.Position{X: x, Y: y})
			continue
		}

		pair, err := cast.ToIntSliceE(item)
		if err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("obstacle %d: expected {x, y} or [x, y]", i)
		}
		positions = append(positions, engine.Position{X: pair[0], Y: pair[1]})
	}
	return positions, nil
}

func (c *Client) handleSaveSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID := cast.ToString(args["session_id"])
	userID := cast.ToString(args["user_id"])

	var saved service.SaveResult
	if err := c.apiCallAs(ctx, userID, "POST", sessionPath(sessionID, "/save"), nil, &saved); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSaveResult(&saved)), nil
}

func (c *Client) handleSimulationHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	userID := cast.ToString(args["user_id"])

	path := "/api/history"
	if limit := cast.ToInt(args["limit"]); limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var response struct {
		Count   int               `json:"count"`
		Records []*records.Record `json:"records"`
	}
	if err := c.apiCallAs(ctx, userID, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Saved runs of %s (%d):\n\n", userID, response.Count)
	for _, rec := range response.Records {
		fmt.Fprintf(&result, "- %s %q -> %s facing %s, %d ok / %d failed\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Commands,
			rec.FinalPosition, rec.FinalHeading, rec.Successes, rec.Failures)
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleAskRobot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID := cast.ToString(args["session_id"])
	question := cast.ToString(args["question"])

	var answer service.NarrationResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/narrate"), map[string]string{"question": question}, &answer); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(answer.Answer), nil
}

func (c *Client) handleListPresets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var presets []config.PresetInfo
	if err := c.apiCall(ctx, "GET", "/api/presets", nil, &presets); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	result.WriteString("Available Presets:\n\n")
	for _, p := range presets {
		fmt.Fprintf(&result, "• %s (%s)\n  %s\n", p.PresetID, p.Name, p.Description)
		if p.Policy == "random" {
			fmt.Fprintf(&result, "  Random layout of %d-%d obstacles\n\n", p.MinObstacles, p.MaxObstacles)
		} else {
			fmt.Fprintf(&result, "  Fixed obstacles: %v\n\n", p.Obstacles)
		}
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `🤖 Robot Simulator - Complete Instructions

GRID:
• 5x5 cells, x grows to the East, y grows to the South
• The robot starts at (0,0), the north-west corner, facing North
• Up to 5 obstacles; the start cell never holds one

COMMANDS:
• A - advance one cell in the current heading
• I - turn left 90 degrees (izquierda)
• D - turn right 90 degrees (derecha)
• Commands are case-insensitive; every character is one step

OUTCOMES:
• ok - the command was carried out
• blocked_boundary - the advance would leave the grid, the robot stays
• blocked_obstacle - the advance would enter an obstacle, the robot stays
• invalid_command - the character is not A, I or D
Every blocked advance and invalid character counts as a failure.

GRID LEGEND (robot_state):
• ^ > v < - the robot and its heading
• # - obstacle
• . - free cell

EDITING:
1. set_edit_mode true (commands are refused while editing)
2. toggle_obstacle on the cells you want
3. set_edit_mode false and start driving
Obstacles can only change before the first step; reset_robot to edit again.

STRATEGY:
• Check "Ahead" in robot_state before advancing
• Use simulate to try a plan without changing the session
• A session and simulate with the same session_id always agree

PERSISTENCE:
• save_simulation stores the current run for a user_id
• simulation_history lists the most recent runs (10 by default)`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session: %s\nPreset: %s\nCreated: %s\n\n%s",
		session.ID, session.PresetName,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatState(session.State))
}

func formatState(state *service.StateView) string {
	if state == nil {
		return "No robot state available"
	}

	var result strings.Builder

	fmt.Fprintf(&result, "Position: %s | Heading: %s | Steps: %d (%d ok, %d failed)\n",
		state.Position, state.Heading, state.Total, state.Successes, state.Failures)
	if state.EditMode {
		result.WriteString("Edit mode: ON (commands are refused)\n")
	}
	result.WriteString("\n")

	for _, row := range state.Grid {
		result.WriteString(row + "\n")
	}
	result.WriteString("\n")

	fmt.Fprintf(&result, "Obstacles: %s\n", state.Obstacles)
	if state.Ahead != "" {
		fmt.Fprintf(&result, "Ahead: %s\n", state.Ahead)
	}
	if len(state.OpenHeadings) > 0 {
		headings := make([]string, len(state.OpenHeadings))
		for i, h := range state.OpenHeadings {
			headings[i] = h.String()
		}
		fmt.Fprintf(&result, "Open headings: %s\n", strings.Join(headings, ", "))
	}
	if state.Commands != "" {
		fmt.Fprintf(&result, "Commands so far: %s\n", state.Commands)
	}

	return result.String()
}

func formatStep(step engine.StepRecord) string {
	mark := "✓"
	if !step.Succeeded {
		mark = "✗"
	}
	return fmt.Sprintf("%s #%d %s -> %s facing %s (%s)",
		mark, step.Index+1, step.Command, step.Position, step.Heading, step.Outcome)
}

func formatKeyResult(result *service.KeyResult) string {
	if !result.Handled {
		return fmt.Sprintf("Key %q has no binding; nothing happened.\n\n%s", result.Key, formatState(result.State))
	}
	return formatStep(*result.Step) + "\n\n" + formatState(result.State)
}

func formatCommandsResult(result *service.CommandsResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Executed %d of %d: %d ok, %d failed\n", result.Executed, result.Requested, result.Successes, result.Failures)
	fmt.Fprintf(&b, "%s -> %s\n", result.StartState, result.EndState)
	if len(result.Ignored) > 0 {
		fmt.Fprintf(&b, "Ignored keys: %s\n", strings.Join(result.Ignored, ", "))
	}
	b.WriteString("\n")
	for _, step := range result.Steps {
		b.WriteString(formatStep(step) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(formatState(result.State))

	return b.String()
}

func formatResult(result *engine.SimulationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Commands: %s\nObstacles: %s\n", result.Commands, result.Obstacles)
	fmt.Fprintf(&b, "Final: %s facing %s | %d ok, %d failed\n\n",
		result.FinalPosition, result.FinalHeading, result.SuccessCount, result.FailureCount)
	for _, step := range result.Steps {
		b.WriteString(formatStep(step) + "\n")
	}

	return b.String()
}

func formatSaveResult(saved *service.SaveResult) string {
	head := "Run not saved"
	if saved.Saved && saved.Record != nil {
		head = fmt.Sprintf("✓ Saved as %s", saved.Record.ID)
	}
	return head + "\n\n" + formatResult(&saved.Result)
}

func formatTrace(trace *service.TraceResponse) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Step trace (page %d of %d, %d steps total):\n\n", trace.Page, trace.TotalPages, trace.TotalSteps)
	for _, step := range trace.Steps {
		b.WriteString(formatStep(step) + "\n")
	}
	if trace.HasNext {
		fmt.Fprintf(&b, "\nMore steps on page %d\n", trace.Page+1)
	}

	return b.String()
}
