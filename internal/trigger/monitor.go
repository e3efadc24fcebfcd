// Package trigger reads the push button on a GPIO line and debounces it.
package trigger

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/lexiqai/voice-button/internal/apperr"
)

// State is the debounced button state.
type State int

const (
	Released State = iota
	Pressed
)

func (s State) String() string {
	if s == Pressed {
		return "PRESSED"
	}
	return "RELEASED"
}

// Monitor polls an active-low input line. The line must stay LOW for at least the
// debounce threshold before Poll reports Pressed; any HIGH read resets the timer.
type Monitor struct {
	pin      gpio.PinIn
	debounce time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lowSince time.Time
}

// Open initializes the host GPIO drivers and configures the named pin (e.g. "GPIO16")
// as a pulled-up input. Failures are configuration errors.
func Open(pinName string, debounce time.Duration) (*Monitor, error) {
	if _, err := host.Init(); err != nil {
		return nil, apperr.Configuration("trigger", fmt.Errorf("failed to initialize GPIO host: %w", err))
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, apperr.Configuration("trigger", fmt.Errorf("GPIO pin %q not found", pinName))
	}
	return New(pin, debounce, time.Now)
}

// New wraps an already resolved pin. now defaults to time.Now.
func New(pin gpio.PinIn, debounce time.Duration, now func() time.Time) (*Monitor, error) {
	if now == nil {
		now = time.Now
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, apperr.Configuration("trigger", fmt.Errorf("failed to configure %s as input: %w", pin, err))
	}
	return &Monitor{pin: pin, debounce: debounce, now: now}, nil
}

// Poll reads the line once and returns the debounced state.
func (m *Monitor) Poll() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pin.Read() == gpio.High {
		m.lowSince = time.Time{}
		return Released
	}

	now := m.now()
	if m.lowSince.IsZero() {
		m.lowSince = now
	}
	if now.Sub(m.lowSince) >= m.debounce {
		return Pressed
	}
	return Released
}

// Pressed reports whether the button is currently held.
func (m *Monitor) Pressed() bool {
	return m.Poll() == Pressed
}

// Name returns the pin name.
func (m *Monitor) Name() string {
	return m.pin.Name()
}

// Close releases the pin.
func (m *Monitor) Close() error {
	return m.pin.Halt()
}
