package ml

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
)

// trainTestSplit holds out ceil(testFrac*n) rows. The split is stratified
// on y when every class has at least two members.
func trainTestSplit(y []int, testFrac float64, rng *rand.Rand) (train, test []int, stratified bool) {
	n := len(y)
	nTest := int(math.Ceil(testFrac * float64(n)))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}

	byClass := classIndex(y)
	stratified = len(byClass) > 1
	for _, rows := range byClass {
		if len(rows) < 2 {
			stratified = false
		}
	}

	if !stratified {
		perm := rng.Perm(n)
		test = append(test, perm[:nTest]...)
		train = append(train, perm[nTest:]...)
		sort.Ints(train)
		sort.Ints(test)
		return train, test, false
	}

	classes := sortedClasses(byClass)
	alloc := allocate(classes, byClass, n, nTest)
	for i, c := range classes {
		rows := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(rows), func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })
		test = append(test, rows[:alloc[i]]...)
		train = append(train, rows[alloc[i]:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, true
}

// allocate spreads nTest across classes in proportion to their size using
// largest remainders, keeping at least one row of each class for training.
func allocate(classes []int, byClass map[int][]int, n, nTest int) []int {
	alloc := make([]int, len(classes))
	type rem struct {
		i    int
		frac float64
	}
	var rems []rem
	used := 0
	for i, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		alloc[i] = int(math.Floor(exact))
		used += alloc[i]
		rems = append(rems, rem{i, exact - math.Floor(exact)})
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; used < nTest && k < len(rems)*2; k++ {
		r := rems[k%len(rems)]
		if alloc[r.i] < len(byClass[classes[r.i]])-1 {
			alloc[r.i]++
			used++
		}
	}
	return alloc
}

// stratifiedFolds deals each class's rows round-robin into k folds in their
// original order.
func stratifiedFolds(rows []int, y []int, k int) [][]int {
	folds := make([][]int, k)
	byClass := make(map[int][]int)
	for _, r := range rows {
		byClass[y[r]] = append(byClass[y[r]], r)
	}
	next := 0
	for _, c := range sortedClasses(byClass) {
		for _, r := range byClass[c] {
			folds[next%k] = append(folds[next%k], r)
			next++
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds
}

func classIndex(y []int) map[int][]int {
	out := make(map[int][]int)
	for i, v := range y {
		out[v] = append(out[v], i)
	}
	return out
}

func sortedClasses(byClass map[int][]int) []int {
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes
}

func accuracy(m Classifier, X [][]float64, y []int, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	correct := 0
	for _, r := range rows {
		if m.Predict(X[r]) == y[r] {
			correct++
		}
	}
	return float64(correct) / float64(len(rows))
}

// ClassMetrics is one row of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1_score" yaml:"f1_score"`
	Support   int     `json:"support" yaml:"support"`
}

// Report is a per-class precision/recall/F1 summary over the test rows.
type Report struct {
	Classes     map[string]ClassMetrics `json:"classes" yaml:"classes"`
	Accuracy    float64                 `json:"accuracy" yaml:"accuracy"`
	MacroAvg    ClassMetrics            `json:"macro_avg" yaml:"macro_avg"`
	WeightedAvg ClassMetrics            `json:"weighted_avg" yaml:"weighted_avg"`
}

func classificationReport(truth, pred []int) Report {
	labels := map[int]bool{}
	for i := range truth {
		labels[truth[i]] = true
		labels[pred[i]] = true
	}
	keys := make([]int, 0, len(labels))
	for l := range labels {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	rep := Report{Classes: make(map[string]ClassMetrics, len(keys))}
	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	if len(truth) > 0 {
		rep.Accuracy = float64(correct) / float64(len(truth))
	}

	var total int
	for _, l := range keys {
		var tp, fp, fn int
		for i := range truth {
			switch {
			case pred[i] == l && truth[i] == l:
				tp++
			case pred[i] == l:
				fp++
			case truth[i] == l:
				fn++
			}
		}
		m := ClassMetrics{
			Precision: safeDiv(float64(tp), float64(tp+fp)),
			Recall:    safeDiv(float64(tp), float64(tp+fn)),
			Support:   tp + fn,
		}
		m.F1 = safeDiv(2*m.Precision*m.Recall, m.Precision+m.Recall)
		rep.Classes[strconv.Itoa(l)] = m

		k := float64(len(keys))
		rep.MacroAvg.Precision += m.Precision / k
		rep.MacroAvg.Recall += m.Recall / k
		rep.MacroAvg.F1 += m.F1 / k
		rep.WeightedAvg.Precision += m.Precision * float64(m.Support)
		rep.WeightedAvg.Recall += m.Recall * float64(m.Support)
		rep.WeightedAvg.F1 += m.F1 * float64(m.Support)
		total += m.Support
	}
	rep.MacroAvg.Support = total
	rep.WeightedAvg.Support = total
	if total > 0 {
		rep.WeightedAvg.Precision /= float64(total)
		rep.WeightedAvg.Recall /= float64(total)
		rep.WeightedAvg.F1 /= float64(total)
	}
	return rep
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
