package element

// Determinant3 expands the determinant of A along its first row
func Determinant3(A [Dim][Dim]float64) float64 {
	d1 := A[0][0] * (A[1][1]*A[2][2] - A[2][1]*A[1][2])
	d2 := A[0][1] * (A[1][0]*A[2][2] - A[2][0]*A[1][2])
	d3 := A[0][2] * (A[1][0]*A[2][1] - A[2][0]*A[1][1])
	return d1 - d2 + d3
}

// Inverse3 inverts A by cofactors. A singular A is not detected: the result
// carries Inf or NaN, so callers screen degenerate tetrahedra first (see
// CheckJacobian).
func Inverse3(A [Dim][Dim]float64) (inv [Dim][Dim]float64) {
	s := 1.0 / Determinant3(A)
	inv[0][0] = s * (A[1][1]*A[2][2] - A[2][1]*A[1][2])
	inv[0][1] = s * (A[0][2]*A[2][1] - A[2][2]*A[0][1])
	inv[0][2] = s * (A[0][1]*A[1][2] - A[1][1]*A[0][2])
	inv[1][0] = s * (A[1][2]*A[2][0] - A[2][2]*A[1][0])
	inv[1][1] = s * (A[0][0]*A[2][2] - A[2][0]*A[0][2])
	inv[1][2] = s * (A[0][2]*A[1][0] - A[1][2]*A[0][0])
	inv[2][0] = s * (A[1][0]*A[2][1] - A[2][0]*A[1][1])
	inv[2][1] = s * (A[0][1]*A[2][0] - A[2][1]*A[0][0])
	inv[2][2] = s * (A[0][0]*A[1][1] - A[1][0]*A[0][1])
	return
}
