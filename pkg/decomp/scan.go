package decomp

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"shapeletfit/internal/models"
)

// OrderScan is the outcome of an exhaustive scan over the number of Hermite
// terms per axis.
type OrderScan struct {
	// Terms is the selected number of terms per axis (n_max + 1)
	Terms int

	// Costs[i] is chi-squared with i+1 terms per axis
	Costs []float64
}

// Order returns the selected model order pair
func (s OrderScan) Order() models.OrderPair {
	return models.OrderPair{Row: s.Terms - 1, Col: s.Terms - 1}
}

// ScanOrders evaluates DiscreteCost for every n in [1, maxTerms] with scale
// and centroid held fixed and selects the smallest chi-squared. Costs within
// tol of the current best count as ties and keep the smaller order. Up to
// workers evaluations run concurrently; the selection does not depend on
// evaluation order.
func ScanOrders(img, noise *models.Image, scale models.ScalePair, centroid models.Centroid, maxTerms int, tol float64, workers int) (OrderScan, error) {
	if maxTerms < 1 {
		maxTerms = 1
	}
	if workers < 1 {
		workers = 1
	}

	locs := mat.NewDense(maxTerms, 1, nil)
	for i := 0; i < maxTerms; i++ {
		locs.Set(i, 0, float64(i+1))
	}

	pool := make(chan *evaluator, workers)
	for i := 0; i < workers; i++ {
		pool <- newEvaluator(img, noise)
	}

	costs := make([]float64, maxTerms)
	obj := &objective{}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			order, err := orderFromTerms(x[0])
			if err != nil {
				return obj.value(0, err)
			}
			ev := <-pool
			cost, err := ev.chi2(scale, centroid, order)
			pool <- ev

			v := obj.value(cost, err)
			if idx := order.Row; idx < len(costs) {
				costs[idx] = v
			}
			return v
		},
		Status: obj.status,
	}
	settings := &optimize.Settings{
		Converger:  optimize.NeverTerminate{},
		Concurrent: workers,
	}
	if _, err := optimize.Minimize(problem, []float64{1}, settings, &optimize.ListSearch{Locs: locs}); err != nil {
		return OrderScan{}, err
	}
	if err := obj.failure(); err != nil {
		return OrderScan{}, err
	}

	return OrderScan{Terms: selectOrder(costs, tol) + 1, Costs: costs}, nil
}

// selectOrder returns the index of the first minimum in ascending order,
// where a later cost must beat the best so far by more than tol.
func selectOrder(costs []float64, tol float64) int {
	best := 0
	for i := 1; i < len(costs); i++ {
		if costs[i] < costs[best]-tol {
			best = i
		}
	}
	return best
}
