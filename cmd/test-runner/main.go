// Package main - test_runner.go
// Executable to run the relativity scenarios against a local engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shovit/timerooms/internal/platform/logger"
	"github.com/shovit/timerooms/test"
)

func main() {
	fmt.Println("TIME ROOMS - RELATIVITY SCENARIOS")
	fmt.Println("=================================")

	suite := test.NewRelativitySuite(logger.Discard())
	results := suite.RunAll(context.Background())
	failed := suite.Report()

	fmt.Printf("   Passed: %d\n", len(results)-failed)
	fmt.Printf("   Failed: %d\n", failed)

	if failed > 0 {
		fmt.Println("\nThe room clocks need recalibration")
		os.Exit(1)
	}
	fmt.Println("\nThe room clocks are ready")
}
