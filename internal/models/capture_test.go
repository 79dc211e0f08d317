package models

import (
	"testing"
	"time"
)

func TestNewCaptureIsImmutable(t *testing.T) {
	img := []byte{1, 2, 3}
	region := &Region{X: 1, Y: 2, Width: 3, Height: 4}
	ts := time.Date(2025, 8, 4, 16, 25, 12, 987654321, time.FixedZone("CEST", 2*3600))

	c := NewCapture(img, ts, region, "hotkey")
	img[0] = 9
	region.X = 100

	if c.Image()[0] != 1 {
		t.Error("capture shares the caller's image buffer")
	}
	if c.Region().X != 1 {
		t.Error("capture shares the caller's region")
	}
	want := time.Date(2025, 8, 4, 14, 25, 12, 0, time.UTC)
	if !c.Timestamp().Equal(want) || c.Timestamp().Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v", c.Timestamp(), want)
	}
	if c.Source() != "hotkey" {
		t.Errorf("Source = %q", c.Source())
	}
}

func TestParseRegion(t *testing.T) {
	tests := []struct {
		in      string
		want    Region
		wantErr bool
	}{
		{"0,0,1920,1080", Region{0, 0, 1920, 1080}, false},
		{" 5, 6 ,7,8", Region{5, 6, 7, 8}, false},
		{"1,2,3", Region{}, true},
		{"1,2,0,4", Region{}, true},
		{"a,b,c,d", Region{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRegion(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}
