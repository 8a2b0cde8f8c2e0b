package cropper

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/face-capture/pkg/types"
)

// FaceCropper cuts a normalized square face crop out of a frame
type FaceCropper struct {
	config CropConfig
}

// CropConfig holds configuration for face cropping
type CropConfig struct {
	// Margin is added to every side of the detected box, in pixels
	Margin int
	// Size is the edge length of the square output
	Size int
	// Square expands the inflated box to a square before resizing
	Square bool
}

// DefaultCropConfig returns the default capture crop settings
func DefaultCropConfig() CropConfig {
	return CropConfig{
		Margin: 50,
		Size:   224,
		Square: true,
	}
}

// New creates a new FaceCropper with default configuration
func New() *FaceCropper {
	return &FaceCropper{config: DefaultCropConfig()}
}

// NewWithConfig creates a new FaceCropper with custom configuration
func NewWithConfig(config CropConfig) *FaceCropper {
	return &FaceCropper{config: config}
}

// Config returns the cropper configuration
func (c *FaceCropper) Config() CropConfig {
	return c.config
}

// CropResult contains the result of a cropping operation
type CropResult struct {
	Image  image.Image
	Region image.Rectangle
}

// Region computes the frame rectangle that will be cut for a face box
func (c *FaceCropper) Region(bounds image.Rectangle, box types.Box) (image.Rectangle, error) {
	if box.Empty() {
		return image.Rectangle{}, fmt.Errorf("empty face box")
	}

	m := float64(c.config.Margin)
	x0, y0 := box.X-m, box.Y-m
	x1, y1 := box.X+box.W+m, box.Y+box.H+m

	if c.config.Square {
		w, h := x1-x0, y1-y0
		if w > h {
			y0 -= (w - h) / 2
			y1 = y0 + w
		} else {
			x0 -= (h - w) / 2
			x1 = x0 + h
		}
	}

	rect := image.Rect(int(x0+0.5), int(y0+0.5), int(x1+0.5), int(y1+0.5)).Intersect(bounds)
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("face box %v lies outside frame %v", box, bounds)
	}
	return rect, nil
}

// CropFace crops the inflated face region and resizes it to the output size
func (c *FaceCropper) CropFace(img image.Image, box types.Box) (CropResult, error) {
	if c.config.Size <= 0 {
		return CropResult{}, fmt.Errorf("invalid output size %d", c.config.Size)
	}

	region, err := c.Region(img.Bounds(), box)
	if err != nil {
		return CropResult{}, err
	}

	cropped := imaging.Crop(img, region)
	// Clamping at the frame edge can break the square; Fill restores it from the centre.
	out := imaging.Fill(cropped, c.config.Size, c.config.Size, imaging.Center, imaging.Lanczos)

	return CropResult{Image: out, Region: region}, nil
}
