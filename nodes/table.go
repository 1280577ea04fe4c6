package nodes

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"pipelined.dev/rtgraph/backend/wav"
)

// ErrSampleRate is returned when the table file doesn't match the stream
// sample rate.
var ErrSampleRate = errors.New("sample rate mismatch")

var validate = validator.New()

// ReadTable reads the first channel of the wav file. Zero sampleRate
// accepts any file.
func ReadTable(path string, sampleRate int) ([]float64, error) {
	data, rate, err := wav.Load(path)
	if err != nil {
		return nil, err
	}
	if sampleRate != 0 && rate != sampleRate {
		return nil, fmt.Errorf("%s: %w: %d != %d", path, ErrSampleRate, rate, sampleRate)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data[0], nil
}
