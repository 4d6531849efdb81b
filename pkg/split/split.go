// Package split partitions encoded labels into train/test sets and
// cross-validation folds.
package split

import (
	"math"
	"math/rand"
	"sort"

	"github.com/hed1ad/goguardml/pkg/errs"
)

// Policy decides what a stratified split does when a class has a single
// member and cannot appear on both sides.
type Policy string

const (
	// PolicyStrict fails with a data quality error.
	PolicyStrict Policy = "strict"
	// PolicyFallback degrades to a seeded, non-stratified split.
	PolicyFallback Policy = "fallback"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict, PolicyFallback:
		return Policy(s), nil
	case "":
		return PolicyStrict, nil
	default:
		return "", errs.Configuration("unknown stratify policy %q (want %q or %q)", s, PolicyStrict, PolicyFallback)
	}
}

// Result holds sorted row positions of each partition.
type Result struct {
	Train []int
	Test  []int
	// Stratified is false when PolicyFallback replaced the stratified split.
	Stratified bool
}

// Stratified splits positions 0..len(y)-1 so that each class keeps its
// share of the full set in the test partition, up to integer rounding.
//
// The test size is ceil(testFraction*n). Each class receives the floor of
// its proportional quota; leftover test slots go to the classes with the
// largest remainders, ties to the lower class code. A class never gives
// up its last training member. Members are drawn with a rand.Rand seeded
// by seed, so identical inputs yield identical splits.
func Stratified(y []int, testFraction float64, seed int64, policy Policy) (*Result, error) {
	n := len(y)
	nTest, err := testSize(n, testFraction)
	if err != nil {
		return nil, err
	}

	byClass := groupByClass(y)
	classes := sortedKeys(byClass)

	for _, c := range classes {
		if len(byClass[c]) >= 2 {
			continue
		}
		if policy == PolicyFallback {
			return shuffled(n, nTest, seed), nil
		}
		return nil, errs.DataQuality("class %d has %d member; stratified split needs at least 2 per class", c, len(byClass[c]))
	}

	if nTest < len(classes) {
		return nil, errs.DataQuality("test size %d is smaller than the number of classes %d", nTest, len(classes))
	}
	if n-nTest < len(classes) {
		return nil, errs.DataQuality("train size %d is smaller than the number of classes %d", n-nTest, len(classes))
	}

	quota := allocate(byClass, classes, n, nTest)

	rng := rand.New(rand.NewSource(seed))
	res := &Result{Stratified: true}
	for _, c := range classes {
		members := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		res.Test = append(res.Test, members[:quota[c]]...)
		res.Train = append(res.Train, members[quota[c]:]...)
	}

	sort.Ints(res.Train)
	sort.Ints(res.Test)
	return res, nil
}

func testSize(n int, testFraction float64) (int, error) {
	if !(testFraction > 0 && testFraction < 1) {
		return 0, errs.Configuration("test fraction %v outside (0, 1)", testFraction)
	}
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest == 0 || nTest >= n {
		return 0, errs.Configuration("test fraction %v of %d rows leaves an empty partition", testFraction, n)
	}
	return nTest, nil
}

// allocate distributes nTest slots across classes by largest remainder.
func allocate(byClass map[int][]int, classes []int, n, nTest int) map[int]int {
	type rem struct {
		class int
		frac  float64
	}

	quota := make(map[int]int, len(classes))
	rems := make([]rem, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(len(byClass[c])) * float64(nTest) / float64(n)
		q := int(math.Floor(exact))
		if q >= len(byClass[c]) {
			q = len(byClass[c]) - 1
		}
		quota[c] = q
		assigned += q
		rems = append(rems, rem{class: c, frac: exact - float64(q)})
	}

	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for assigned < nTest {
		progressed := false
		for _, r := range rems {
			if assigned == nTest {
				break
			}
			if quota[r.class]+1 < len(byClass[r.class]) {
				quota[r.class]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return quota
}

func shuffled(n, nTest int, seed int64) *Result {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	res := &Result{
		Test:  append([]int(nil), perm[:nTest]...),
		Train: append([]int(nil), perm[nTest:]...),
	}
	sort.Ints(res.Train)
	sort.Ints(res.Test)
	return res
}

func groupByClass(y []int) map[int][]int {
	byClass := make(map[int][]int)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	return byClass
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
