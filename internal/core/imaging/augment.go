package imaging

import (
	"image"
	"math"
	"math/rand"

	"facegate/internal/config"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Augmenter synthesizes bounded variations of a face crop so that a handful
// of enrollment photos still yields a usable amount of intra-class variation.
// Variants never change the image dimensions.
type Augmenter struct {
	cfg config.AugmentationConfig
	rng *rand.Rand
}

// NewAugmenter creates an augmenter. The noise RNG is seeded from config so
// that repeated builds over unchanged photos produce the same dataset.
func NewAugmenter(cfg config.AugmentationConfig) *Augmenter {
	return &Augmenter{cfg: cfg, rng: rand.New(rand.NewSource(cfg.NoiseSeed))}
}

// Apply returns the augmentation set for one source image. The original is
// always first; when augmentation is disabled it is the only element.
func (a *Augmenter) Apply(img *image.Gray) []*image.Gray {
	out := []*image.Gray{img}
	if !a.cfg.Enabled {
		return out
	}

	out = append(out,
		Rotate(img, -a.cfg.RotationDegrees),
		Rotate(img, a.cfg.RotationDegrees),
		ScaleIntensity(img, a.cfg.BrightnessFactor),
		ScaleIntensity(img, a.cfg.ContrastFactor),
		a.addNoise(img),
	)
	return out
}

// Rotate rotates the image by the given angle in degrees around its center,
// preserving dimensions. Exposed corners stay black, like the affine warp
// the classifier was tuned against.
func Rotate(src *image.Gray, degrees float64) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(b.Dx()) / 2
	cy := float64(b.Dy()) / 2

	// Rotation about the center: translate, rotate, translate back.
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	xdraw.BiLinear.Transform(dst, m, src, b, xdraw.Src, nil)
	return dst
}

// ScaleIntensity multiplies every pixel by factor, clamping to [0, 255].
// Factors above 1 brighten, factors below 1 darken/flatten.
func ScaleIntensity(src *image.Gray, factor float64) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for i, p := range src.Pix {
		dst.Pix[i] = clampUint8(float64(p) * factor)
	}
	return dst
}

// addNoise adds low-variance Gaussian noise.
func (a *Augmenter) addNoise(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for i, p := range src.Pix {
		dst.Pix[i] = clampUint8(float64(p) + a.rng.NormFloat64()*a.cfg.NoiseSigma)
	}
	return dst
}
