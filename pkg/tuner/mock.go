package tuner

import "context"

// Mock is an in-memory Tuner for tests. It records every call so
// assertions can check both the resulting state and the call history.
type Mock struct {
	Freq      uint64
	Bandwidth uint32
	FreqCalls []uint64
	BWCalls   []uint32
	Err       error
}

func (m *Mock) SetFreq(ctx context.Context, hz uint64) error {
	if m.Err != nil {
		return m.Err
	}
	m.Freq = hz
	m.FreqCalls = append(m.FreqCalls, hz)
	return nil
}

func (m *Mock) SetBandwidth(ctx context.Context, hz uint32) error {
	if m.Err != nil {
		return m.Err
	}
	m.Bandwidth = hz
	m.BWCalls = append(m.BWCalls, hz)
	return nil
}

func (m *Mock) CurrentFreq(ctx context.Context) (uint64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Freq, nil
}
