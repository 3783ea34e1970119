package monitor

import "fmt"

// color and value mirror the reference badge generator's grade
// coloring, retargeted from a severity score to a distribution-drift
// health: green when within target bands, red when degraded, grey for
// "insufficient data" (neither confirms nor denies health).
func (h HealthStatus) color() string {
	switch {
	case h.Message == "healthy - insufficient data":
		return "#9f9f9f"
	case h.Healthy:
		return "#4c1"
	default:
		return "#e05d44"
	}
}

func (h HealthStatus) value() string {
	if h.Healthy {
		if h.Message == "healthy - insufficient data" {
			return "warming up"
		}
		return "healthy"
	}
	return "degraded"
}

// Badge renders an SVG status badge for the current distribution health, in
// the same flat shields.io style used elsewhere in this project's lineage.
func (d *Distribution) Badge() string {
	h := d.Health()
	return generateSVG("tier distribution", h.value(), h.color())
}

// generateSVG produces an SVG badge string for the given label, value, and
// color, adapted from the reference badge generator's template and
// text-width estimation.
func generateSVG(label, value, color string) string {
	labelW := textWidth(label) + 10
	valueW := textWidth(value) + 10
	totalW := labelW + valueW

	labelX := labelW * 10 / 2
	valueX := (labelW + valueW/2) * 10

	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="20" role="img" aria-label="%s: %s">
  <title>%s: %s</title>
  <linearGradient id="s" x2="0" y2="100%%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="r">
    <rect width="%d" height="20" rx="3" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#r)">
    <rect width="%d" height="20" fill="#555"/>
    <rect x="%d" width="%d" height="20" fill="%s"/>
    <rect width="%d" height="20" fill="url(#s)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" text-rendering="geometricPrecision" font-size="110">
    <text aria-hidden="true" x="%d" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)">%s</text>
    <text x="%d" y="140" transform="scale(.1)">%s</text>
    <text aria-hidden="true" x="%d" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)">%s</text>
    <text x="%d" y="140" transform="scale(.1)">%s</text>
  </g>
</svg>
`,
		totalW, label, value,
		label, value,
		totalW,
		labelW,
		labelW, valueW, color,
		totalW,
		labelX, label,
		labelX, label,
		valueX, value,
		valueX, value,
	)
}

// textWidth estimates the pixel width of a string rendered in Verdana 11px,
// matching the shields.io flat badge style.
func textWidth(s string) int {
	w := 0.0
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
			w += 7.5
		case c >= 'a' && c <= 'z':
			w += 6.1
		case c >= '0' && c <= '9':
			w += 6.5
		case c == ' ':
			w += 3.3
		default:
			w += 6.0
		}
	}
	return int(w) + 1
}
