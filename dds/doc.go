// Package dds reads and writes DirectDraw Surface files holding the block
// compressed tiles stored in the asset tile cache.
//
// # Encoding
//
// Encode compresses an RGBA8 buffer to BC3 (DXT5) and appends a box-filtered
// mip chain. The compressor uses a range fit per 4x4 block: endpoints are the
// corners of the block's colour bounding box, oriented along the dominant
// covariance, which is fast and good enough for small previews.
//
// # Decoding
//
// Decode reads the top mip level of BC1, BC2, BC3 and uncompressed 24/32-bit
// files. The package registers itself with the standard image package, so
// image.Decode recognizes DDS data after importing it.
package dds
