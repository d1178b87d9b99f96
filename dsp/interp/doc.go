// Package interp provides the fractional-sample interpolation primitives
// used by delay-based DSP blocks.
//
// Available methods, from cheapest to highest quality:
//
//   - [Linear2]:  2-point linear interpolation
//   - [Hermite4]: 4-point cubic Hermite
//
// Modulated delay taps default to [Linear2]; [Hermite4] is the better choice
// for static taps where the extra two reads are affordable.
package interp
