// main.go

package main

import (
	"github.com/amareque/challenge-senior-engineer/cmd"
	"github.com/amareque/challenge-senior-engineer/pkg/logger"
)

func main() {
	// Fallback logger so startup failures are visible before configuration
	// is read; setup swaps in the configured one.
	logger.InitFallback()

	cmd.Execute()
}
