package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/randomparity/vpo/internal/domain"
)

// Exit codes: 0 success, 1 operational error, 3 policy validation error,
// 130 user interrupt.
const (
	exitOK               = 0
	exitError            = 1
	exitPolicyValidation = 3
	exitInterrupt        = 130
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		switch {
		case errors.Is(err, domain.ErrConfig):
			os.Exit(exitPolicyValidation)
		case errors.Is(err, errInterrupted):
			os.Exit(exitInterrupt)
		default:
			os.Exit(exitError)
		}
	}
}
