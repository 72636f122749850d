// distccd is distcc's volunteer compile server.
//
// Commands:
//
//	serve   - Run as a daemon or under inetd, accepting compile jobs
//	worker  - Internal: the re-exec'd per-worker accept loop
//	version - Print version information
package main

import (
	"fmt"
	"os"

	derrors "github.com/distccd-go/distccd/internal/errors"

	"github.com/distccd-go/distccd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(derrors.ExitCode(err))
	}
}
