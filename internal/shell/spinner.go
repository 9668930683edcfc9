package shell

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinner draws a single status line that is erased again on Stop. When
// disabled it prints nothing, which keeps piped output and tests clean.
type spinner struct {
	out      io.Writer
	enabled  bool
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	lastLen int
}

func newSpinner(out io.Writer, enabled bool) *spinner {
	return &spinner{out: out, enabled: enabled, interval: 120 * time.Millisecond}
}

func (s *spinner) Start(message string) {
	if !s.enabled {
		return
	}
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = make(chan struct{})
	stop := s.stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for idx := 0; ; idx++ {
			line := pterm.NewStyle(pterm.FgLightCyan).Sprint(spinnerFrames[idx%len(spinnerFrames)]) + " " + message
			s.mu.Lock()
			_, _ = fmt.Fprint(s.out, "\r"+line)
			s.lastLen = len(line)
			s.mu.Unlock()
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()
}

func (s *spinner) Stop() {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprint(s.out, "\r"+strings.Repeat(" ", s.lastLen)+"\r")
	s.lastLen = 0
}
