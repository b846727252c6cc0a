package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Spinner is a simple terminal progress indicator.
type Spinner struct {
	frames  []string
	current int
	message string
	stop    chan bool
	stopped bool
	mu      sync.Mutex
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		frames:  []string{"|", "/", "-", "\\"},
		message: message,
		stop:    make(chan bool),
	}
}

// Start begins animating the spinner.
func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.stopped {
					fmt.Printf("\r%s %s %s",
						ColorProgress(s.frames[s.current]),
						s.message,
						strings.Repeat(" ", 10),
					)
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop halts the spinner and prints a final status line.
func (s *Spinner) Stop(success bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)

	symbol := ColorSuccess("OK")
	if !success {
		symbol = ColorError("FAIL")
	}
	fmt.Printf("\r%s %s%s\n", symbol, message, strings.Repeat(" ", 10))
}
