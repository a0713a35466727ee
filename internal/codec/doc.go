// Package codec defines the format taxonomy and the opaque capability
// contracts the engine consumes: encode, rasterize, container decode, and
// vector minification. The standard-library adapter in this package is one
// implementation of those contracts; the engine never depends on it
// directly.
package codec
