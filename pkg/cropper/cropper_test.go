package cropper

import (
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/face-capture/pkg/types"
)

// createTestImage creates a frame with a bright "face" block
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/4 && y < 3*height/4 {
				img.Set(x, y, color.RGBA{230, 190, 160, 255})
			} else {
				img.Set(x, y, color.RGBA{40, 40, 40, 255})
			}
		}
	}
	return img
}

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Fatal("New() returned nil")
	}
	if c.config.Size != 224 {
		t.Errorf("Expected size 224, got %d", c.config.Size)
	}
	if c.config.Margin != 50 {
		t.Errorf("Expected margin 50, got %d", c.config.Margin)
	}
}

func TestRegionInflatesAndSquares(t *testing.T) {
	c := New()
	bounds := image.Rect(0, 0, 720, 560)

	region, err := c.Region(bounds, types.Box{X: 300, Y: 200, W: 100, H: 140})
	if err != nil {
		t.Fatalf("Region failed: %v", err)
	}

	// 100+100 wide, 140+100 tall -> squared to 240
	if region.Dx() != 240 || region.Dy() != 240 {
		t.Errorf("Expected 240x240 region, got %dx%d", region.Dx(), region.Dy())
	}
	if region.Min.Y != 150 {
		t.Errorf("Expected top at 150, got %d", region.Min.Y)
	}
	if region.Min.X != 230 {
		t.Errorf("Expected left at 230, got %d", region.Min.X)
	}
}

func TestRegionClampsToFrame(t *testing.T) {
	c := New()
	bounds := image.Rect(0, 0, 320, 240)

	region, err := c.Region(bounds, types.Box{X: 0, Y: 0, W: 80, H: 80})
	if err != nil {
		t.Fatalf("Region failed: %v", err)
	}
	if !region.In(bounds) {
		t.Errorf("Region %v escapes frame %v", region, bounds)
	}
}

func TestRegionErrors(t *testing.T) {
	c := New()
	bounds := image.Rect(0, 0, 320, 240)

	if _, err := c.Region(bounds, types.Box{X: 10, Y: 10}); err == nil {
		t.Error("Expected error for empty box")
	}
	if _, err := c.Region(bounds, types.Box{X: 1000, Y: 1000, W: 10, H: 10}); err == nil {
		t.Error("Expected error for box outside the frame")
	}
}

func TestCropFace(t *testing.T) {
	c := New()
	img := createTestImage(720, 560)

	result, err := c.CropFace(img, types.Box{X: 250, Y: 150, W: 220, H: 260})
	if err != nil {
		t.Fatalf("CropFace failed: %v", err)
	}

	b := result.Image.Bounds()
	if b.Dx() != 224 || b.Dy() != 224 {
		t.Errorf("Expected 224x224 output, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestCropFaceAtEdgeStaysSquare(t *testing.T) {
	c := NewWithConfig(CropConfig{Margin: 20, Size: 64, Square: true})
	img := createTestImage(200, 100)

	result, err := c.CropFace(img, types.Box{X: 150, Y: 10, W: 45, H: 80})
	if err != nil {
		t.Fatalf("CropFace failed: %v", err)
	}
	b := result.Image.Bounds()
	if b.Dx() != 64 || b.Dy() != 64 {
		t.Errorf("Expected 64x64 output, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestCropFaceInvalidSize(t *testing.T) {
	c := NewWithConfig(CropConfig{Margin: 10, Size: 0})
	if _, err := c.CropFace(createTestImage(100, 100), types.Box{X: 10, Y: 10, W: 20, H: 20}); err == nil {
		t.Error("Expected error for zero output size")
	}
}

func BenchmarkCropFace(b *testing.B) {
	c := New()
	img := createTestImage(720, 560)
	box := types.Box{X: 250, Y: 150, W: 220, H: 260}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.CropFace(img, box)
	}
}
