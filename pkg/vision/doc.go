// Package vision holds the low-level image features used to find cards:
// a grayscale pixel buffer, a Sobel edge map, the candidate confidence
// scorer and the geometric constraints a card region must satisfy.
//
// Buffers and edge maps are immutable once built. Every function in this
// package only reads them, so a single buffer can be shared by any number
// of goroutines.
package vision
