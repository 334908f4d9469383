package classify

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
)

// ErrNotTextile is returned when the image does not look like a fabric photo.
var ErrNotTextile = errors.New("image is not textile")

// Result is the structured hint the create-listing workflow consumes. The
// classifier itself is a black box; only this shape is part of the contract.
type Result struct {
	FabricType     string  `json:"fabric_type"`
	Confidence     float64 `json:"confidence"`
	EstimatedValue float64 `json:"estimated_value"` // per kg
}

// Classifier assigns a fabric type and grade to an uploaded photo.
type Classifier interface {
	Classify(ctx context.Context, imageBytes []byte, filename string) (*Result, error)
}

var fabricTypes = []string{"Cotton", "Polyester", "Silk", "Denim", "Linen", "Wool"}

// perKgValue per fabric type index, roughly tracking market prices.
var perKgValue = []float64{2.5, 1.2, 9.0, 3.0, 4.5, 6.0}

// Simulator is a deterministic stand-in for the real model: the content hash
// picks the fabric type, so the same image always classifies the same way.
type Simulator struct{}

func NewSimulator() *Simulator {
	return &Simulator{}
}

func (s *Simulator) Classify(_ context.Context, imageBytes []byte, filename string) (*Result, error) {
	if len(imageBytes) == 0 {
		return nil, ErrNotTextile
	}
	name := strings.ToLower(filename)
	if strings.HasSuffix(name, ".pdf") || strings.HasSuffix(name, ".txt") {
		return nil, ErrNotTextile
	}

	h := fnv.New32a()
	_, _ = h.Write(imageBytes)
	sum := h.Sum32()

	idx := int(sum) % len(fabricTypes)
	if idx < 0 {
		idx = -idx
	}
	confidence := 0.70 + float64(sum%25)/100.0

	return &Result{
		FabricType:     fabricTypes[idx],
		Confidence:     confidence,
		EstimatedValue: perKgValue[idx],
	}, nil
}
