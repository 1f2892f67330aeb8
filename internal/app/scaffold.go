package app

import (
	"context"
	"math"
)

// PI is exposed to the embedding application as a constant.
const PI = math.Pi

// Hello is the scaffold greeting.
func (s *TelephonyService) Hello() string {
	return "Hello world! 👋"
}

// OnChange registers fn to receive every value passed to SetValue.
func (s *TelephonyService) OnChange(fn func(value string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// SetValue emits an onChange event carrying value.
func (s *TelephonyService) SetValue(_ context.Context, value string) {
	s.mu.Lock()
	listeners := append([]func(string){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(value)
	}
	s.log.Debug("onChange emitted", "value", value, "listeners", len(listeners))
}
