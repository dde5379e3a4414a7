package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"kbqa/internal/domain"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfig):
		return 2
	case errors.Is(err, domain.ErrStoreNotFound), errors.Is(err, domain.ErrNothingToIndex):
		return 3
	}
	return 1
}
