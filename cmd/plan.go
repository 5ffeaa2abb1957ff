package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/seatwise/seatctl/internal/store"
)

func printMutations(muts []store.Mutation) {
	if len(muts) == 0 {
		fmt.Println("Nothing to write")
		return
	}
	fmt.Printf("Planned writes (%d):\n", len(muts))
	for _, m := range muts {
		if m.Reason != "" {
			fmt.Printf("  %s  # %s\n", m, m.Reason)
		} else {
			fmt.Printf("  %s\n", m)
		}
	}
}

// confirm asks on stdin unless force is set.
func confirm(prompt string, force bool) bool {
	if force {
		return true
	}
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

// applyPlan writes muts after confirmation. Without apply it only prints
// how to run for real.
func applyPlan(ctx context.Context, s store.Store, muts []store.Mutation, apply, force bool) error {
	if len(muts) == 0 {
		return nil
	}
	if !apply {
		fmt.Println("\nDry run. Re-run with --apply to write these changes.")
		return nil
	}
	if !confirm(fmt.Sprintf("Write %d changes?", len(muts)), force) {
		fmt.Println("Cancelled")
		return nil
	}

	res, err := s.Apply(ctx, muts)
	if err != nil {
		return fmt.Errorf("%d of %d writes committed: %w", res.Committed, len(muts), err)
	}
	fmt.Printf("✓ %d writes committed in %d batches\n", res.Committed, res.Batches)
	return nil
}
