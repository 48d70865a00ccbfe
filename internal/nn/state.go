package nn

import "fmt"

// StateVector flattens parameter values for checkpointing.
func StateVector(params []*Value) []float64 {
	out := make([]float64, len(params))
	for i, p := range params {
		out[i] = p.Data
	}
	return out
}

// LoadStateVector restores parameter values from a flattened checkpoint.
func LoadStateVector(params []*Value, state []float64) error {
	if len(params) != len(state) {
		return fmt.Errorf("state vector has %d values, component has %d parameters", len(state), len(params))
	}
	for i, p := range params {
		p.Data = state[i]
	}
	return nil
}

func (e *MLPEncoder) StateVector() []float64 {
	return StateVector(e.Parameters())
}

func (e *MLPEncoder) LoadStateVector(state []float64) error {
	return LoadStateVector(e.Parameters(), state)
}

func (d *RNNDecoder) StateVector() []float64 {
	return StateVector(d.Parameters())
}

func (d *RNNDecoder) LoadStateVector(state []float64) error {
	return LoadStateVector(d.Parameters(), state)
}
