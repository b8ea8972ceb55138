package field

import "github.com/lucasb-eyer/go-colorful"

// linearRGB is a color in linear light, the space the renderer blends in.
type linearRGB struct{ r, g, b float64 }

func toLinear(c colorful.Color) linearRGB {
	r, g, b := c.LinearRgb()
	return linearRGB{r, g, b}
}

func (c linearRGB) lerp(to linearRGB, t float64) linearRGB {
	return linearRGB{
		r: c.r + (to.r-c.r)*t,
		g: c.g + (to.g-c.g)*t,
		b: c.b + (to.b-c.b)*t,
	}
}

func (c linearRGB) put(buf []float32, i int) {
	buf[3*i] = float32(c.r)
	buf[3*i+1] = float32(c.g)
	buf[3*i+2] = float32(c.b)
}
