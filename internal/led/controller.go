// Package led drives a board LED as a camera activity indicator: solid
// while any camera streams, blinking while a live feed is being
// requested, off otherwise.
package led

// Pattern is what the LED shows.
type Pattern string

// Patterns.
const (
	Off   Pattern = "off"
	Solid Pattern = "solid"
	Blink Pattern = "blink"
)

// Controller switches one LED between patterns.
type Controller interface {
	Set(p Pattern) error
}
