package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tallyd/tally/internal/client"
)

// Exit codes for different failure modes
const (
	ExitSuccess        = 0 // Everything delivered
	ExitDeliveryFailed = 1 // Retry budget exhausted with steps still pending
	ExitError          = 2 // Configuration or runtime error
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// A delivery failure means the run stopped with pending state the
		// next invocation will resume; everything else is a config or
		// runtime problem.
		var deliveryErr *client.DeliveryFailedError
		if errors.As(err, &deliveryErr) {
			os.Exit(ExitDeliveryFailed)
		}

		os.Exit(ExitError)
	}
}
