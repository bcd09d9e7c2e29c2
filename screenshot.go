package lumen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"
)

// Screenshot queues a labeled screenshot to be captured after the next frame
// is presented. The PNG is written to Config.Render.ScreenshotDir with a
// timestamped filename. Safe to call from a Layer or a component.
func (e *Engine) Screenshot(label string) {
	e.screenshots = append(e.screenshots, label)
}

// PendingScreenshots returns the labels queued for the next frame.
func (e *Engine) PendingScreenshots() []string { return e.screenshots }

// flushScreenshots captures screen for every queued label.
func (e *Engine) flushScreenshots(screen *ebiten.Image) {
	if len(e.screenshots) == 0 {
		return
	}
	labels := e.screenshots
	e.screenshots = nil

	size := screen.Bounds().Size()
	pixels := make([]byte, 4*size.X*size.Y)
	screen.ReadPixels(pixels)

	paths, err := saveScreenshots(e.screenshotDir(), unpremultiply(pixels, size.X, size.Y), labels, time.Now())
	for _, p := range paths {
		e.Logger.Info("screenshot saved", zap.String("path", p))
	}
	if err != nil {
		e.Logger.Error("screenshot failed", zap.Error(err))
	}
}

func (e *Engine) screenshotDir() string {
	if e.Config == nil || e.Config.Render.ScreenshotDir == "" {
		return "screenshots"
	}
	return e.Config.Render.ScreenshotDir
}

// unpremultiply converts premultiplied RGBA pixels to straight-alpha NRGBA.
// Fully transparent and fully opaque pixels are copied unchanged.
func unpremultiply(pixels []byte, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	n := min(len(pixels), len(img.Pix)) &^ 3
	copy(img.Pix, pixels[:n])
	for i := 0; i < n; i += 4 {
		a := int(img.Pix[i+3])
		if a == 0 || a == 255 {
			continue
		}
		for c := i; c < i+3; c++ {
			img.Pix[c] = uint8(min(int(img.Pix[c])*255/a, 255))
		}
	}
	return img
}

// saveScreenshots writes img once per label into dir and returns the paths
// written. It stops at the first error.
func saveScreenshots(dir string, img *image.NRGBA, labels []string, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	stamp := now.Format("20060102_150405")
	paths := make([]string, 0, len(labels))
	for _, label := range labels {
		path := filepath.Join(dir, stamp+"_"+sanitizeLabel(label)+".png")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// sanitizeLabel keeps ASCII letters, digits, '-' and '.', maps every other
// rune to '_', and names empty labels "unlabeled".
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unlabeled"
	}
	return strings.Map(func(r rune) rune {
		if r < utf8.RuneSelf && (r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, label)
}
