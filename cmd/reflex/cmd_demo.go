// Package main implements the interactive healing demo for ReflexRuntime.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"reflexruntime/internal/capture"
	"reflexruntime/internal/orchestrator"

	"github.com/spf13/cobra"
)

// =============================================================================
// INTERACTIVE DEMO
// =============================================================================

// demoCmd runs the deliberately buggy division calculator under healing.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the self-healing division calculator demo",
	Long: `Runs an interactive calculator whose divide function panics on a zero
divisor. The first division by zero triggers the healing loop: the failure is
captured, sent to the configured LLM, and the function is hot-swapped in the
live namespace. Subsequent divisions by zero use the repaired implementation.

Requires an API key for the configured provider (e.g. OPENAI_API_KEY).`,
	RunE: runDemo,
}

// divide is the deliberately fragile demo function. A zero divisor panics
// with an integer divide by zero, which is the failure the healing loop is
// asked to repair.
func divide(a, b int) int {
	return a / b
}

func runDemo(cmd *cobra.Command, args []string) error {
	orch, err := orchestrator.Activate(cfg)
	if err != nil {
		return fmt.Errorf("failed to activate healing: %w", err)
	}
	defer orchestrator.Deactivate()

	ns := orch.Namespaces().Main()
	if err := ns.Register("divide", divide); err != nil {
		return fmt.Errorf("failed to register demo function: %w", err)
	}

	fmt.Println("🧮 Self-Healing Calculator")
	fmt.Println("Enter two integers to divide; try a zero divisor to watch the")
	fmt.Println("runtime repair itself. Type 'quit' to exit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("dividend> ")
		if !scanner.Scan() {
			break
		}
		first := strings.TrimSpace(scanner.Text())
		if first == "quit" || first == "exit" {
			break
		}
		a, err := strconv.Atoi(first)
		if err != nil {
			fmt.Println("Please enter an integer.")
			continue
		}

		fmt.Print("divisor>  ")
		if !scanner.Scan() {
			break
		}
		second := strings.TrimSpace(scanner.Text())
		if second == "quit" || second == "exit" {
			break
		}
		b, err := strconv.Atoi(second)
		if err != nil {
			fmt.Println("Please enter an integer.")
			continue
		}

		result, ok := protectedDivide(orch, a, b)
		if ok {
			fmt.Printf("%d / %d = %d\n\n", a, b, result)
		} else {
			fmt.Printf("%d / %d could not be computed.\n\n", a, b)
		}
	}

	return scanner.Err()
}

// protectedDivide calls divide through the namespace so the call observes
// hot-swaps, routing any panic through the healing loop. After a successful
// heal the call is retried once against the repaired binding.
func protectedDivide(orch *orchestrator.Orchestrator, a, b int) (result int, ok bool) {
	ns := orch.Namespaces().Main()

	call := func() (int, error) {
		out, err := ns.Call("divide", a, b)
		if err != nil {
			return 0, err
		}
		return out[0].(int), nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		healed := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					healed = orch.Handle(context.Background(), r, capture.Callers(2),
						capture.WithTargetFQN("main.divide"),
						capture.WithLocals(map[string]any{"a": a, "b": b}),
					)
				}
			}()
			r, err := call()
			if err == nil {
				result = r
				ok = true
			}
		}()
		if ok || !healed {
			return result, ok
		}
		// Healed: loop once more against the rebound function.
	}
	return result, ok
}
