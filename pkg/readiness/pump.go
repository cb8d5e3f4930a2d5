package readiness

import (
	"bufio"
	"io"
	"strings"
)

// Pump reads r line by line on a new goroutine and hands every line to each
// consumer in order. The returned channel is closed once r is exhausted or
// fails, which for a process pipe means the process and its children closed
// their output.
func Pump(r io.Reader, consumers ...Consumer) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				line = strings.TrimRight(line, "\r\n")
				for _, c := range consumers {
					c.Accept(line)
				}
			}
			// EOF or a closed pipe; nothing more will arrive
			if err != nil {
				return
			}
		}
	}()

	return done
}
