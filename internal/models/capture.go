package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Region is the screen rectangle a capture was taken from.
type Region struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRegion reads the "x,y,w,h" form produced by Region.String.
func ParseRegion(s string) (*Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("region must be x,y,width,height: %q", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid region component %q: %w", p, err)
		}
		vals[i] = v
	}
	if vals[2] <= 0 || vals[3] <= 0 {
		return nil, fmt.Errorf("region width and height must be positive: %q", s)
	}
	return &Region{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

// Capture is one screenshot handed to the pipeline. It is never mutated after
// construction.
type Capture struct {
	image     []byte
	timestamp time.Time
	region    *Region
	source    string
}

// NewCapture copies image and normalizes timestamp to UTC second precision.
func NewCapture(image []byte, timestamp time.Time, region *Region, source string) Capture {
	img := make([]byte, len(image))
	copy(img, image)
	var r *Region
	if region != nil {
		rc := *region
		r = &rc
	}
	return Capture{
		image:     img,
		timestamp: timestamp.UTC().Truncate(time.Second),
		region:    r,
		source:    source,
	}
}

// Image returns the PNG bytes. Callers must not modify the returned slice.
func (c Capture) Image() []byte { return c.image }

func (c Capture) Timestamp() time.Time { return c.timestamp }

func (c Capture) Source() string { return c.source }

// Region returns a copy of the capture rectangle, or nil for a full screen.
func (c Capture) Region() *Region {
	if c.region == nil {
		return nil
	}
	r := *c.region
	return &r
}

func (c Capture) IsEmpty() bool { return len(c.image) == 0 }
