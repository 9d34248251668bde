package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/render"
	"github.com/wricardo/robot-simulator/sim/scenario"
)

var errNothingToRun = errors.New("give a scenario file or --commands")

// runCommand runs one batch simulation locally, without a server.
func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a scenario file or a command string and print the trace",
		ArgsUsage: "[scenario-file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "commands", Aliases: []string{"c"}, Usage: "Command string to run instead of a scenario file"},
			&cli.StringSliceFlag{Name: "obstacle", Aliases: []string{"o"}, Usage: "Obstacle cell as x,y (repeatable)"},
			&cli.StringFlag{Name: "preset", Aliases: []string{"p"}, Usage: "Preset to take the layout from"},
			&cli.Uint64Flag{Name: "seed", Usage: "Seed for a random preset layout (0 draws a fresh one)"},
			&cli.BoolFlag{Name: "json", Usage: "Print the result as JSON"},
			&cli.BoolFlag{Name: "no-color", Usage: "Disable colored output"},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	w, color := render.Stdout()
	if out := cmd.Root().Writer; out != nil && out != os.Stdout {
		w, color = out, false
	}
	if cmd.Bool("no-color") {
		color = false
	}

	var sc *scenario.Scenario
	var result engine.SimulationResult

	switch {
	case cmd.Args().Len() > 0:
		if cmd.IsSet("commands") || cmd.IsSet("obstacle") || cmd.IsSet("preset") {
			return fmt.Errorf("a scenario file carries its own commands and obstacles")
		}

		var err error
		sc, err = scenario.ParseFile(cmd.Args().First())
		if err != nil {
			return err
		}
		result, err = sc.Run()
		if err != nil {
			return err
		}

	case cmd.IsSet("commands"):
		commands := cmd.String("commands")
		if err := engine.ValidateCommands(commands); err != nil {
			return err
		}
		obstacles, err := runLayout(cmd)
		if err != nil {
			return err
		}
		result = engine.RunFromStart(obstacles, commands)

	default:
		return errNothingToRun
	}

	if err := printResult(w, result, cmd.Bool("json"), color); err != nil {
		return err
	}

	if sc != nil && len(sc.Expects) > 0 {
		if err := sc.Check(result); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d expectations met\n", sc.Name, len(sc.Expects))
	}
	return nil
}

// runLayout resolves the layout of a --commands run from --obstacle or
// --preset. Neither means an empty grid.
func runLayout(cmd *cli.Command) (engine.ObstacleSet, error) {
	cells := cmd.StringSlice("obstacle")
	presetName := cmd.String("preset")

	if len(cells) > 0 && presetName != "" {
		return engine.ObstacleSet{}, fmt.Errorf("give --obstacle or --preset, not both")
	}

	if presetName != "" {
		presets, err := config.NewManager(cmd.String("config-dir"))
		if err != nil {
			return engine.ObstacleSet{}, err
		}
		preset, err := presets.LoadPreset(presetName)
		if err != nil {
			return engine.ObstacleSet{}, err
		}
		if preset.Fixed() {
			return preset.Layout()
		}
		seed := cmd.Uint64("seed")
		if seed == 0 {
			seed = rand.Uint64()
		}
		gen, err := preset.NewGenerator(rand.New(rand.NewPCG(seed, seed)))
		if err != nil {
			return engine.ObstacleSet{}, err
		}
		return gen.Generate(), nil
	}

	positions := make([]engine.Position, 0, len(cells))
	for _, cell := range cells {
		var p engine.Position
		if _, err := fmt.Sscanf(cell, "%d,%d", &p.X, &p.Y); err != nil {
			return engine.ObstacleSet{}, fmt.Errorf("invalid obstacle %q, expected x,y", cell)
		}
		positions = append(positions, p)
	}
	return engine.NewObstacleSet(positions...)
}

func printResult(w io.Writer, result engine.SimulationResult, asJSON, color bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if err := render.Grid(w, result.FinalState(), result.Obstacles, color); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return render.Trace(w, result, color)
}
