package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/penwyp/claudequota/cmd"
	"github.com/penwyp/claudequota/models"
)

func main() {
	err := cmd.Execute(context.Background())
	if err == nil {
		return
	}

	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(models.ExitCodeFailure)
}
