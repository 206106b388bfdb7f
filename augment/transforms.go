package augment

import (
	"math"

	"go.viam.com/pcdaug/pointcloud"
)

const (
	jitterSigma    = 0.01
	translateSigma = 0.01
	scaleLow       = 0.9
	scaleHigh      = 1.1
	rgbNoiseLow    = -5
	rgbNoiseHigh   = 5
	rgbLightSigma  = 20
)

// Jitter adds independent N(0, 0.01) noise to every coordinate of every point.
func Jitter(cloud *pointcloud.PointCloud, sampler Sampler) {
	pts := cloud.Points()
	for i := range pts {
		pts[i].Position.X += sampler.Normal(0, jitterSigma)
		pts[i].Position.Y += sampler.Normal(0, jitterSigma)
		pts[i].Position.Z += sampler.Normal(0, jitterSigma)
	}
}

// Scale multiplies every coordinate by a single factor drawn from U[0.9, 1.1).
// It returns the factor used.
func Scale(cloud *pointcloud.PointCloud, sampler Sampler) float64 {
	f := sampler.Uniform(scaleLow, scaleHigh)
	ScaleBy(cloud, f)
	return f
}

// ScaleBy multiplies every coordinate by f.
func ScaleBy(cloud *pointcloud.PointCloud, f float64) {
	pts := cloud.Points()
	for i := range pts {
		pts[i].Position = pts[i].Position.Mul(f)
	}
}

// Translate adds independent N(0, 0.01) noise to x and y of every point. z is untouched.
func Translate(cloud *pointcloud.PointCloud, sampler Sampler) {
	pts := cloud.Points()
	for i := range pts {
		pts[i].Position.X += sampler.Normal(0, translateSigma)
		pts[i].Position.Y += sampler.Normal(0, translateSigma)
	}
}

// Rotate rotates the cloud about the z axis by an angle drawn uniformly from
// [0, 360) degrees. It returns the angle in radians.
func Rotate(cloud *pointcloud.PointCloud, sampler Sampler) float64 {
	theta := sampler.Uniform(0, 360) * math.Pi / 180
	RotateBy(cloud, theta)
	return theta
}

// RotateBy rotates every (x, y) by theta radians, treating the pair as a row
// vector multiplied by [[cos, -sin], [sin, cos]]. z is untouched.
func RotateBy(cloud *pointcloud.PointCloud, theta float64) {
	sin, cos := math.Sincos(theta)
	pts := cloud.Points()
	for i := range pts {
		x, y := pts[i].Position.X, pts[i].Position.Y
		pts[i].Position.X = x*cos + y*sin
		pts[i].Position.Y = -x*sin + y*cos
	}
}

// RGBNoise adds an integer drawn from [-5, 5) to every color channel of every
// point, then clamps to [0, 255].
func RGBNoise(cloud *pointcloud.PointCloud, sampler Sampler) {
	pts := cloud.Points()
	for i := range pts {
		c := pts[i].Color
		c.R += float64(sampler.IntRange(rgbNoiseLow, rgbNoiseHigh))
		c.G += float64(sampler.IntRange(rgbNoiseLow, rgbNoiseHigh))
		c.B += float64(sampler.IntRange(rgbNoiseLow, rgbNoiseHigh))
		pts[i].Color = c.Clamped()
	}
}

// RGBLight adds independent N(0, 20) noise to every color channel of every
// point, then clamps to [0, 255].
func RGBLight(cloud *pointcloud.PointCloud, sampler Sampler) {
	pts := cloud.Points()
	for i := range pts {
		c := pts[i].Color
		c.R += sampler.Normal(0, rgbLightSigma)
		c.G += sampler.Normal(0, rgbLightSigma)
		c.B += sampler.Normal(0, rgbLightSigma)
		pts[i].Color = c.Clamped()
	}
}
