package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ridgeLambda is a small regularisation term that keeps the normal equations
// solvable when lag features are nearly collinear.
const ridgeLambda = 1e-2

// ridgeModel is a linear model with intercept fit by ridge regression.
type ridgeModel struct {
	beta []float64 // beta[0] is the intercept
}

// fitRidge solves (XᵀX + λI)β = Xᵀy with a bias column prepended to X.
func fitRidge(features [][]float64, targets []float64) (*ridgeModel, error) {
	n := len(features)
	if n == 0 || n != len(targets) {
		return nil, fmt.Errorf("fit: %d feature rows for %d targets", n, len(targets))
	}
	p := len(features[0]) + 1

	x := mat.NewDense(n, p, nil)
	for i, row := range features {
		x.Set(i, 0, 1)
		for j, v := range row {
			x.Set(i, j+1, v)
		}
	}
	y := mat.NewVecDense(n, targets)

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	gram := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			gram.SetSym(i, j, xtx.At(i, j))
		}
		gram.SetSym(i, i, gram.At(i, i)+ridgeLambda)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var chol mat.Cholesky
	if !chol.Factorize(gram) {
		return nil, fmt.Errorf("fit: singular normal equations")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	out := make([]float64, p)
	copy(out, beta.RawVector().Data)
	return &ridgeModel{beta: out}, nil
}

func (m *ridgeModel) predict(features []float64) float64 {
	v := m.beta[0]
	for j, f := range features {
		v += m.beta[j+1] * f
	}
	return v
}
