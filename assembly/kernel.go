package assembly

import (
	"fmt"
	"strings"

	"github.com/notargets/SEMFEM/element"
)

const stiffnessKernelName = "computeStiffnessMatrix"

// stiffnessKernelSource returns the OKL source of the value pass. The
// tetrahedron table and quadrature weights are emitted from the element
// package so the device and host paths share them. p_Nq and p_Np come from
// the runner preamble.
func stiffnessKernelSource() string {
	var sb strings.Builder

	sb.WriteString(`
int_t bisection_search_index(const int_t *a, const int_t lo, const int_t hi, const int_t key) {
  int_t l = lo;
  int_t r = hi - 1;
  while (l <= r) {
    const int_t m = (l + r) / 2;
    if (a[m] == key) return m;
    if (a[m] < key) l = m + 1;
    else r = m - 1;
  }
  return -1;
}

@kernel void computeStiffnessMatrix(const int_t Nelements,
                                    const real_t *x_base, const int_t x_off,
                                    const real_t *y_base, const int_t y_off,
                                    const real_t *z_base, const int_t z_off,
                                    const real_t *mask_base, const int_t mask_off,
                                    const int_t *rank_base, const int_t rank_off,
                                    const int_t nrows,
                                    const int_t *rows_base, const int_t rows_off,
                                    const int_t *offs_base, const int_t offs_off,
                                    const int_t *cols_base, const int_t cols_off,
                                    real_t *vals_base, const int_t vals_off,
                                    const real_t tol) {
  for (int e = 0; e < Nelements; ++e; @outer) {
    for (int one = 0; one < 1; ++one; @inner) {
      const real_t *x = x_base + x_off;
      const real_t *y = y_base + y_off;
      const real_t *z = z_base + z_off;
      const real_t *mask = mask_base + mask_off;
      const int_t *rank = rank_base + rank_off;
      const int_t *rows = rows_base + rows_off;
      const int_t *offs = offs_base + offs_off;
      const int_t *cols = cols_base + cols_off;
      real_t *vals = vals_base + vals_off;
`)

	sb.WriteString("      const int tetMap[8][4] = {")
	for t, tet := range element.TetMap {
		if t > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("{%d, %d, %d, %d}", tet[0], tet[1], tet[2], tet[3]))
	}
	sb.WriteString("};\n")

	_, qw := element.QuadratureRule()
	sb.WriteString("      const real_t qw[4] = {")
	for q, w := range qw {
		if q > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%.17g", w))
	}
	sb.WriteString("};\n")

	sb.WriteString(`      const real_t gr[4][3] = {{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {-1, -1, -1}};

      for (int sk = 0; sk < p_Nq - 1; ++sk) {
        for (int sj = 0; sj < p_Nq - 1; ++sj) {
          for (int si = 0; si < p_Nq - 1; ++si) {
            int_t corner[8];
            for (int c = 0; c < 8; ++c) {
              corner[c] = (si + (c & 1)) + (sj + ((c >> 1) & 1)) * p_Nq
                        + (sk + ((c >> 2) & 1)) * p_Nq * p_Nq + (int_t) e * p_Np;
            }
            for (int t = 0; t < 8; ++t) {
              int_t v[4];
              real_t xt[3][4];
              for (int a = 0; a < 4; ++a) {
                v[a] = corner[tetMap[t][a]];
                xt[0][a] = x[v[a]];
                xt[1][a] = y[v[a]];
                xt[2][a] = z[v[a]];
              }

              real_t J[3][3];
              for (int i = 0; i < 3; ++i) {
                for (int j = 0; j < 3; ++j) {
                  J[i][j] = REAL_ZERO;
                  for (int a = 0; a < 4; ++a) J[i][j] += xt[i][a] * gr[a][j];
                }
              }
              const real_t det = J[0][0] * (J[1][1] * J[2][2] - J[2][1] * J[1][2])
                               - J[0][1] * (J[1][0] * J[2][2] - J[2][0] * J[1][2])
                               + J[0][2] * (J[1][0] * J[2][1] - J[2][0] * J[1][1]);
              const real_t s = REAL_ONE / det;
              real_t Jinv[3][3];
              Jinv[0][0] = s * (J[1][1] * J[2][2] - J[2][1] * J[1][2]);
              Jinv[0][1] = s * (J[0][2] * J[2][1] - J[2][2] * J[0][1]);
              Jinv[0][2] = s * (J[0][1] * J[1][2] - J[1][1] * J[0][2]);
              Jinv[1][0] = s * (J[1][2] * J[2][0] - J[2][2] * J[1][0]);
              Jinv[1][1] = s * (J[0][0] * J[2][2] - J[2][0] * J[0][2]);
              Jinv[1][2] = s * (J[0][2] * J[1][0] - J[1][2] * J[0][0]);
              Jinv[2][0] = s * (J[1][0] * J[2][1] - J[2][0] * J[1][1]);
              Jinv[2][1] = s * (J[0][1] * J[2][0] - J[2][1] * J[0][0]);
              Jinv[2][2] = s * (J[0][0] * J[1][1] - J[1][0] * J[0][1]);
              const real_t detJ = fabs(det);

              real_t g[4][3];
              for (int a = 0; a < 4; ++a) {
                for (int alpha = 0; alpha < 3; ++alpha) {
                  g[a][alpha] = REAL_ZERO;
                  for (int beta = 0; beta < 3; ++beta) g[a][alpha] += gr[a][beta] * Jinv[beta][alpha];
                }
              }

              for (int i = 0; i < 4; ++i) {
                if (!(mask[v[i]] > REAL_ZERO && rank[v[i]] >= 0)) continue;
                const int_t ri = bisection_search_index(rows, 0, nrows, rank[v[i]]);
                if (ri < 0) continue;
                for (int j = 0; j < 4; ++j) {
                  if (!(mask[v[j]] > REAL_ZERO && rank[v[j]] >= 0)) continue;
                  real_t A = REAL_ZERO;
                  for (int q = 0; q < 4; ++q) {
                    real_t f = REAL_ZERO;
                    for (int alpha = 0; alpha < 3; ++alpha) f += g[i][alpha] * g[j][alpha];
                    A += f * detJ * qw[q];
                  }
                  if (fabs(A) > tol) {
                    const int_t pos = bisection_search_index(cols, offs[ri], offs[ri + 1], rank[v[j]]);
                    if (pos >= 0) {
                      @atomic vals[pos] += A;
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}
`)
	return sb.String()
}
