/*
Package cpc implements the Compressed Probabilistic Counting sketch of Kevin Lang, as found in
Apache DataSketches.

A CPC sketch estimates the number of distinct items in a stream. For the same accuracy it
serializes to roughly 40% less space than an HLL sketch, at the price of a slower update path
once the sketch is large. Sketches built with the same seed merge through a Union, and the
result is again a Sketch.

The estimate of a sketch that was only ever updated with items is the HIP (historical inverse
probability) estimate, which is the more accurate one. Union results carry the ICON estimate,
which is a function of lgK and the coupon count alone.

Images produced by Serialize use the DataSketches preamble layout with family 16, but store the
surprising pairs and the sliding window in their own streams rather than with the DataSketches
compression tables. Their compressed flag is clear, so they are never mistaken for DataSketches
images.
*/
package cpc
