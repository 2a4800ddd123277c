// Package tree fits a binary regression tree with Poisson deviance loss,
// used as a residual/lift diagnostic for a fitted rate model.
//
// The tree partitions rows on the same grouping variables as the main
// fit, but its exposure basis is the main model's fitted expected counts
// rather than raw exposure. A leaf rate near 1 therefore means the main
// model already explains that segment; leaves far from 1 point at
// segments the model misses. The tree is an output artifact only and
// never feeds back into the main model.
//
// Splits follow the rpart conventions the diagnostic inherits: a split is
// kept only when it improves deviance by at least the complexity
// threshold times the root deviance, depth is capped, and categorical
// levels are ordered by rate so only ordered prefix partitions are
// scanned.
package tree

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
	"github.com/arloliu/ratetab/internal/options"
)

const (
	// MaxVariables is the largest number of grouping variables a
	// diagnostic tree accepts.
	MaxVariables = 5

	// MaxDepth is the hard cap on tree depth.
	MaxDepth = 4

	// MinComplexity is the floor on the complexity-pruning threshold.
	MinComplexity = 0.0001
)

// Node is one node of a fitted tree. Interior nodes carry a split;
// leaves carry only the segment statistics.
type Node struct {
	// Variable is the split variable; empty for leaves.
	Variable string `json:"variable,omitempty"`
	// Threshold splits a numeric variable: rows with value < Threshold
	// go left.
	Threshold float64 `json:"threshold,omitempty"`
	// LeftLevels lists the categorical levels routed left.
	LeftLevels []string `json:"left_levels,omitempty"`

	Left  *Node `json:"left,omitempty"`
	Right *Node `json:"right,omitempty"`

	// Rate is the segment's actual/expected ratio: response total over
	// exposure-basis total.
	Rate float64 `json:"rate"`
	// Count is the number of rows in the segment.
	Count int `json:"count"`
	// Response is the segment's response total.
	Response float64 `json:"response"`
	// Exposure is the segment's exposure-basis total.
	Exposure float64 `json:"exposure"`
	// Deviance is the segment's Poisson deviance at Rate.
	Deviance float64 `json:"deviance"`
}

// IsLeaf reports whether the node has no split.
func (n *Node) IsLeaf() bool { return n.Left == nil }

// Tree is a fitted diagnostic tree.
type Tree struct {
	Root      *Node    `json:"root"`
	Variables []string `json:"variables"`
	Depth     int      `json:"depth"`
	CP        float64  `json:"cp"`
}

// config collects Fit options.
type config struct {
	maxDepth int
	cp       float64
}

// Option configures Fit.
type Option = options.Option[*config]

// WithMaxDepth sets the maximum tree depth, capped at MaxDepth.
func WithMaxDepth(depth int) Option {
	return options.New(func(c *config) error {
		if depth < 1 {
			return fmt.Errorf("max depth must be at least 1, got %d", depth)
		}
		c.maxDepth = min(depth, MaxDepth)

		return nil
	})
}

// WithComplexity sets the complexity-pruning threshold, floored at
// MinComplexity. A split must improve deviance by at least cp times the
// root deviance to be kept.
func WithComplexity(cp float64) Option {
	return options.NoError(func(c *config) {
		c.cp = math.Max(cp, MinComplexity)
	})
}

// Fit grows a diagnostic tree.
//
// Parameters:
//   - rows: Dataset holding the grouping variables
//   - vars: Grouping variable names; at most MaxVariables
//   - response: Observed counts per row
//   - exposure: Exposure basis per row (the main model's expected
//     counts); must be strictly positive
//   - opts: Depth and complexity options
//
// Returns:
//   - *Tree: The fitted tree
//   - error: Validation error
func Fit(rows *dataset.Dataset, vars []string, response, exposure []float64, opts ...Option) (*Tree, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("no grouping variables given")
	}
	if len(vars) > MaxVariables {
		return nil, fmt.Errorf("%d grouping variables given, maximum is %d", len(vars), MaxVariables)
	}
	n := rows.NumRows()
	if len(response) != n || len(exposure) != n {
		return nil, fmt.Errorf("dimension mismatch: %d rows, %d responses, %d exposures", n, len(response), len(exposure))
	}
	for _, name := range vars {
		if rows.Column(name) == nil {
			return nil, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
		}
	}
	for i, e := range exposure {
		if e <= 0 || math.IsNaN(e) {
			return nil, fmt.Errorf("%w: row %d has exposure basis %g", errs.ErrNonPositiveExposure, i, e)
		}
	}

	cfg := config{maxDepth: MaxDepth, cp: MinComplexity}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	g := &grower{
		rows:     rows,
		vars:     vars,
		response: response,
		exposure: exposure,
		cfg:      cfg,
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	root := g.newNode(idx)
	g.rootDev = root.Deviance
	g.grow(root, idx, 0)

	return &Tree{
		Root:      root,
		Variables: slices.Clone(vars),
		Depth:     cfg.maxDepth,
		CP:        cfg.cp,
	}, nil
}

// Predict returns the leaf rate for every row of a dataset carrying the
// tree's grouping variables.
func (t *Tree) Predict(rows *dataset.Dataset) ([]float64, error) {
	for _, name := range t.Variables {
		if rows.Column(name) == nil {
			return nil, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
		}
	}

	out := make([]float64, rows.NumRows())
	for i := range out {
		node := t.Root
		for !node.IsLeaf() {
			col := rows.Column(node.Variable)
			var left bool
			if col.Kind == format.KindNumeric {
				left = col.Floats[i] < node.Threshold
			} else {
				left = slices.Contains(node.LeftLevels, col.Strings[i])
			}
			if left {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		out[i] = node.Rate
	}

	return out, nil
}

// Leaves returns the tree's leaves in left-to-right order.
func (t *Tree) Leaves() []*Node {
	var leaves []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			leaves = append(leaves, n)
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(t.Root)

	return leaves
}

// grower carries the shared fitting state.
type grower struct {
	rows     *dataset.Dataset
	vars     []string
	response []float64
	exposure []float64
	cfg      config
	rootDev  float64
}

// newNode computes the segment statistics for a set of rows.
func (g *grower) newNode(idx []int) *Node {
	var sumY, sumE float64
	for _, i := range idx {
		sumY += g.response[i]
		sumE += g.exposure[i]
	}
	rate := sumY / sumE

	return &Node{
		Rate:     rate,
		Count:    len(idx),
		Response: sumY,
		Exposure: sumE,
		Deviance: poissonDev(sumY, rate*sumE),
	}
}

// grow recursively splits a node while depth and complexity allow.
func (g *grower) grow(node *Node, idx []int, depth int) {
	if depth >= g.cfg.maxDepth || len(idx) < 2 {
		return
	}

	best := g.bestSplit(node, idx)
	if best == nil {
		return
	}
	improvement := node.Deviance - best.leftDev - best.rightDev
	if improvement <= 0 || improvement < g.cfg.cp*g.rootDev {
		return
	}

	node.Variable = best.variable
	node.Threshold = best.threshold
	node.LeftLevels = best.leftLevels
	node.Left = g.newNode(best.leftIdx)
	node.Right = g.newNode(best.rightIdx)
	g.grow(node.Left, best.leftIdx, depth+1)
	g.grow(node.Right, best.rightIdx, depth+1)
}

// split describes a candidate partition of a node's rows.
type split struct {
	variable   string
	threshold  float64
	leftLevels []string
	leftIdx    []int
	rightIdx   []int
	leftDev    float64
	rightDev   float64
}

// bestSplit scans every grouping variable for the partition with the
// smallest child deviance total.
func (g *grower) bestSplit(node *Node, idx []int) *split {
	var best *split
	bestDev := math.Inf(1)

	for _, name := range g.vars {
		col := g.rows.Column(name)
		var cand *split
		if col.Kind == format.KindNumeric {
			cand = g.bestNumericSplit(name, col.Floats, idx)
		} else {
			cand = g.bestCategoricalSplit(name, col.Strings, idx)
		}
		if cand != nil && cand.leftDev+cand.rightDev < bestDev {
			bestDev = cand.leftDev + cand.rightDev
			best = cand
		}
	}

	return best
}

// bestNumericSplit scans threshold splits in sorted value order using
// running totals.
func (g *grower) bestNumericSplit(name string, values []float64, idx []int) *split {
	order := slices.Clone(idx)
	sort.Slice(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	var totalY, totalE float64
	for _, i := range order {
		totalY += g.response[i]
		totalE += g.exposure[i]
	}

	var best *split
	bestDev := math.Inf(1)
	var leftY, leftE float64
	for k := 0; k < len(order)-1; k++ {
		i := order[k]
		leftY += g.response[i]
		leftE += g.exposure[i]

		// Only between distinct values.
		if values[i] == values[order[k+1]] {
			continue
		}

		rightY := totalY - leftY
		rightE := totalE - leftE
		ld := poissonDevAt(g, order[:k+1], leftY/leftE)
		rd := poissonDevAt(g, order[k+1:], rightY/rightE)
		if ld+rd < bestDev {
			bestDev = ld + rd
			best = &split{
				variable:  name,
				threshold: (values[i] + values[order[k+1]]) / 2,
				leftIdx:   slices.Clone(order[:k+1]),
				rightIdx:  slices.Clone(order[k+1:]),
				leftDev:   ld,
				rightDev:  rd,
			}
		}
	}

	return best
}

// bestCategoricalSplit orders levels by rate and scans ordered prefix
// partitions, the standard reduction for a single categorical split.
func (g *grower) bestCategoricalSplit(name string, values []string, idx []int) *split {
	type levelStat struct {
		level string
		sumY  float64
		sumE  float64
	}
	stats := make(map[string]*levelStat)
	var levels []string
	for _, i := range idx {
		v := values[i]
		st, ok := stats[v]
		if !ok {
			st = &levelStat{level: v}
			stats[v] = st
			levels = append(levels, v)
		}
		st.sumY += g.response[i]
		st.sumE += g.exposure[i]
	}
	if len(levels) < 2 {
		return nil
	}

	sort.Slice(levels, func(a, b int) bool {
		ra := stats[levels[a]].sumY / stats[levels[a]].sumE
		rb := stats[levels[b]].sumY / stats[levels[b]].sumE
		if ra == rb {
			return levels[a] < levels[b]
		}
		return ra < rb
	})

	var best *split
	bestDev := math.Inf(1)
	for cut := 1; cut < len(levels); cut++ {
		leftSet := make(map[string]struct{}, cut)
		for _, level := range levels[:cut] {
			leftSet[level] = struct{}{}
		}

		var leftIdx, rightIdx []int
		var leftY, leftE, rightY, rightE float64
		for _, i := range idx {
			if _, ok := leftSet[values[i]]; ok {
				leftIdx = append(leftIdx, i)
				leftY += g.response[i]
				leftE += g.exposure[i]
			} else {
				rightIdx = append(rightIdx, i)
				rightY += g.response[i]
				rightE += g.exposure[i]
			}
		}

		ld := poissonDevAt(g, leftIdx, leftY/leftE)
		rd := poissonDevAt(g, rightIdx, rightY/rightE)
		if ld+rd < bestDev {
			bestDev = ld + rd
			best = &split{
				variable:   name,
				leftLevels: slices.Clone(levels[:cut]),
				leftIdx:    leftIdx,
				rightIdx:   rightIdx,
				leftDev:    ld,
				rightDev:   rd,
			}
		}
	}

	return best
}

// poissonDevAt computes the Poisson deviance of a row set against a
// common rate.
func poissonDevAt(g *grower, idx []int, rate float64) float64 {
	var dev float64
	for _, i := range idx {
		dev += poissonDev(g.response[i], rate*g.exposure[i])
	}

	return dev
}

// poissonDev is the Poisson deviance contribution 2*(y*log(y/mu)-(y-mu)),
// with the y=0 limit handled exactly.
func poissonDev(y, mu float64) float64 {
	if y > 0 {
		return 2 * (y*math.Log(y/mu) - (y - mu))
	}

	return 2 * mu
}
