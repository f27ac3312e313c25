// Package hll is a Go implementation of the HyperLogLog sketch as found in the Apache DataSketches
// library. Given a stream of input elements, a sketch estimates the number of unique items in the
// stream, and sketches built on separate machines can be merged with a Union.
//
// A sketch starts out as a short list of coupons (a 26-bit address plus a 6-bit leading zero count
// derived from a 128-bit murmur3 hash). The list grows into a hash set of coupons and finally into
// a dense array of 2^lgConfigK registers that are 4, 6 or 8 bits wide. The 4-bit form keeps values
// relative to the smallest register and spills rare large values into an auxiliary map, trading a
// little update speed for memory.
//
// While updates arrive in order the sketch keeps a Historical Inverse Probability (HIP) estimate.
// Merged sketches fall back to a composite estimate computed from the register histogram using the
// improved estimator of Otmar Ertl, "New cardinality estimation algorithms for HyperLogLog
// sketches" (2017), which needs no empirical bias tables.
//
// The serialized image is the DataSketches HLL layout (family 7, serial version 1), in both its
// compact and updatable forms.
package hll
