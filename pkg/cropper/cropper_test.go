package cropper

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/menta2k/mmbcd/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				// Central bright region (lesion)
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				// Background
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	return img
}

func TestNew(t *testing.T) {
	cropper := New()
	if cropper == nil {
		t.Fatal("New() returned nil")
	}

	if cropper.Size() != 224 {
		t.Errorf("Expected default size 224, got %d", cropper.Size())
	}

	if cropper.config.Mean != ImageNetMean || cropper.config.Std != ImageNetStd {
		t.Error("Expected ImageNet statistics by default")
	}
}

func TestNewWithConfig(t *testing.T) {
	cropper := NewWithConfig(Config{Size: 32})
	if cropper.Size() != 32 {
		t.Errorf("Expected size 32, got %d", cropper.Size())
	}

	if cropper.config.Std != ImageNetStd {
		t.Error("Expected zero std to fall back to ImageNet statistics")
	}
}

func TestToPixelsTruncates(t *testing.T) {
	box := types.Box{Cx: 0.5, Cy: 0.5, W: 0.33, H: 0.21}
	got := ToPixels(box, 101, 99)

	// (0.5-0.165)*101 = 33.835 -> 33, (0.5+0.165)*101 = 67.165 -> 67
	// (0.5-0.105)*99  = 39.105 -> 39, (0.5+0.105)*99  = 59.895 -> 59
	want := image.Rectangle{Min: image.Pt(33, 39), Max: image.Pt(67, 59)}
	if got != want {
		t.Errorf("ToPixels = %v, want %v", got, want)
	}
}

func TestToPixelsNotClamped(t *testing.T) {
	box := types.Box{Cx: 0.95, Cy: 0.05, W: 0.2, H: 0.2}
	got := ToPixels(box, 100, 100)
	if got.Max.X <= 100 || got.Min.Y >= 0 {
		t.Errorf("Expected rectangle outside the image, got %v", got)
	}
}

func TestCropOutOfBoundsIsBlack(t *testing.T) {
	cropper := New()
	img := createTestImage(100, 100)

	crop, err := cropper.Crop(img, image.Rect(90, 90, 110, 110))
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	if crop.Bounds().Dx() != 20 || crop.Bounds().Dy() != 20 {
		t.Fatalf("Expected 20x20 crop, got %v", crop.Bounds())
	}

	if c := crop.NRGBAAt(0, 0); c.R != 64 {
		t.Errorf("Expected source pixel inside image, got %v", c)
	}

	if c := crop.NRGBAAt(15, 15); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("Expected black padding outside image, got %v", c)
	}
}

func TestCropEmpty(t *testing.T) {
	cropper := New()
	_, err := cropper.Crop(createTestImage(10, 10), image.Rectangle{Min: image.Pt(5, 5), Max: image.Pt(5, 8)})
	if !errors.Is(err, ErrEmptyCrop) {
		t.Errorf("Expected ErrEmptyCrop, got %v", err)
	}
}

func TestToTensorNormalization(t *testing.T) {
	cropper := NewWithConfig(Config{Size: 4})
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 255, 0, 10})

	ts := cropper.ToTensor(img)
	if len(ts.Shape) != 3 || ts.Shape[0] != 3 || ts.Shape[1] != 1 || ts.Shape[2] != 2 {
		t.Fatalf("Unexpected shape %v", ts.Shape)
	}

	want := []float32{
		(1 - 0.485) / 0.229, (0 - 0.485) / 0.229,
		(0 - 0.456) / 0.224, (1 - 0.456) / 0.224,
		(0 - 0.406) / 0.225, (0 - 0.406) / 0.225,
	}
	for i := range want {
		if math.Abs(float64(ts.Data[i]-want[i])) > 1e-5 {
			t.Errorf("Data[%d] = %f, want %f", i, ts.Data[i], want[i])
		}
	}
}

func TestExtract(t *testing.T) {
	cropper := NewWithConfig(Config{Size: 16})
	img := createTestImage(200, 150)

	proposals := types.ProposalSet{
		{Cx: 0.5, Cy: 0.5, W: 0.2, H: 0.2, Conf: 0.9},
		{Cx: 0.1, Cy: 0.1, W: 0.3, H: 0.3, Conf: 0.5},
		{Cx: 0.5, Cy: 0.5, W: 0.2, H: 0.2, Conf: 0.9},
	}

	ts, err := cropper.Extract(img, proposals)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := []int{3, 3, 16, 16}
	for i := range want {
		if ts.Shape[i] != want[i] {
			t.Fatalf("Expected shape %v, got %v", want, ts.Shape)
		}
	}

	// centre crop sits on the bright square
	if ts.Index(0).Data[0] <= 0 {
		t.Errorf("Expected bright pixel to normalize above zero, got %f", ts.Index(0).Data[0])
	}

	// duplicate proposals give identical crops
	a, c := ts.Index(0).Data, ts.Index(2).Data
	for i := range a {
		if a[i] != c[i] {
			t.Fatal("Expected duplicate proposals to give identical crops")
		}
	}
}

func TestExtractEmptyProposal(t *testing.T) {
	cropper := New()
	_, err := cropper.Extract(createTestImage(100, 100), types.ProposalSet{{Cx: 0.5, Cy: 0.5}})
	if !errors.Is(err, ErrEmptyCrop) {
		t.Errorf("Expected ErrEmptyCrop, got %v", err)
	}
}

func BenchmarkExtract(b *testing.B) {
	cropper := New()
	img := createTestImage(1024, 768)
	proposals := types.ProposalSet{
		{Cx: 0.5, Cy: 0.5, W: 0.2, H: 0.2},
		{Cx: 0.3, Cy: 0.6, W: 0.1, H: 0.3},
		{Cx: 0.7, Cy: 0.2, W: 0.4, H: 0.2},
		{Cx: 0.2, Cy: 0.2, W: 0.2, H: 0.2},
		{Cx: 0.8, Cy: 0.8, W: 0.2, H: 0.2},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cropper.Extract(img, proposals)
	}
}

func TestToImageRoundTrip(t *testing.T) {
	cropper := New()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 10)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}

	back := cropper.ToImage(cropper.ToTensor(img))
	for i := range img.Pix {
		if img.Pix[i] != back.Pix[i] {
			t.Fatalf("Pix[%d] = %d, want %d", i, back.Pix[i], img.Pix[i])
		}
	}
}
