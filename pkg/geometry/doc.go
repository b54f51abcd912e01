// Package geometry implements the geometric normalization operators applied to
// volumetric images.
//
// Every operator is a pure function: it reads its input image and returns a new
// one. Operators that only relabel geometry (Rotate, SetOriginPoint, SetPixDim,
// AffineToIdentity, AffineToDiagonal) keep the voxel buffer as is; the
// reordering and reslicing operators build new voxel data.
//
// Failures are reported as serrors.ErrGeometry so the caller can drop the
// image and keep going with the rest of the batch.
package geometry
