package relay

import (
	"bufio"
	"io"
	"strings"

	"go.uber.org/zap"
)

// RunConsole reads operator commands from in and returns a channel
// that closes when the operator types EX. Other input gets a hint.
// The reader goroutine leaks if in never closes; for stdin that is
// the process lifetime, which is fine.
func RunConsole(in io.Reader, log *zap.Logger) <-chan struct{} {
	stop := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			cmd := strings.ToUpper(strings.TrimSpace(scanner.Text()))
			switch cmd {
			case "":
			case "EX":
				log.Info("console shutdown requested")
				close(stop)
				return
			default:
				log.Info("unknown console command, type EX to stop the server",
					zap.String("command", cmd))
			}
		}
	}()

	return stop
}
