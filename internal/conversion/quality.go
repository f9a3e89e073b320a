package conversion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quality is the requested output quality on a 1-100 scale. The presets are
// plain values on that scale.
type Quality int

const (
	QualityLow    Quality = 30
	QualityMedium Quality = 60
	QualityHigh   Quality = 90
)

// MaxLossiness is the largest value handed to the optimizer's --lossy flag.
const MaxLossiness = 200

// ParseQuality accepts "low", "medium", "high" or a number from 1 to 100.
func ParseQuality(value string) (Quality, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "low":
		return QualityLow, nil
	case "medium", "med", "":
		return QualityMedium, nil
	case "high":
		return QualityHigh, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid quality %q: want low, medium, high or 1-100", value)
	}
	q := Quality(n)
	if err := q.Validate(); err != nil {
		return 0, err
	}
	return q, nil
}

// Validate reports whether q is on the 1-100 scale.
func (q Quality) Validate() error {
	if q < 1 || q > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", int(q))
	}
	return nil
}

// Lossiness maps quality onto the optimizer's lossiness scale. Higher quality
// always yields a lower (or equal) lossiness; quality 100 is lossless.
func (q Quality) Lossiness() int {
	clamped := math.Max(1, math.Min(100, float64(q)))
	return int(math.Round(2 * (100 - clamped)))
}

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	}
	return strconv.Itoa(int(q))
}
