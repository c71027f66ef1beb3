// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/zedomel/beast-mcmc/cdi"
	"github.com/zedomel/beast-mcmc/impute"
	"github.com/zedomel/beast-mcmc/tree"
)

// ErrScenario wraps every scenario validation failure.
var ErrScenario = errors.New("contdiff: invalid scenario")

// Scenario is one evaluation problem read from YAML.
//
//	precision: full
//	tree: "((A:1,B:1):0.5,C:2);"
//	dim_trait: 2
//	rate: 1
//	diffusion:
//	  precision: [[1, 0], [0, 1]]
//	prior:
//	  mean: [0, 0]
//	  precision: 0
//	tips:
//	  A: [1.0, 2.0]
//	  B: [0.5, ~]
type Scenario struct {
	Precision string                `yaml:"precision"`
	Tree      string                `yaml:"tree"`
	NumTraits int                   `yaml:"num_traits"`
	DimTrait  int                   `yaml:"dim_trait"`
	Rate      float64               `yaml:"rate"`
	Diffusion DiffusionConfig       `yaml:"diffusion"`
	Prior     PriorConfig           `yaml:"prior"`
	Tips      map[string][]*float64 `yaml:"tips"`
}

// DiffusionConfig holds the diffusion precision as rows.
type DiffusionConfig struct {
	Precision [][]float64 `yaml:"precision"`
}

// PriorConfig holds the root prior: mean per dimension (shared by all
// traits) and a precision scalar relative to the diffusion; 0 is flat.
type PriorConfig struct {
	Mean      []float64 `yaml:"mean"`
	Precision float64   `yaml:"precision"`
}

// DefaultScenario returns the defaults applied before decoding: full
// precision, one trait of dimension 1, unit rate, unit diffusion precision
// and a flat prior at 0.
func DefaultScenario() Scenario {
	return Scenario{
		Precision: cdi.Full.String(),
		NumTraits: 1,
		DimTrait:  1,
		Rate:      1,
	}
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}

	return ParseScenario(raw)
}

// ParseScenario decodes and validates YAML, filling defaults.
func ParseScenario(raw []byte) (*Scenario, error) {
	s := DefaultScenario()
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	d := s.DimTrait
	if len(s.Diffusion.Precision) == 0 && d > 0 {
		s.Diffusion.Precision = identityRows(d)
	}
	if len(s.Prior.Mean) == 0 && d > 0 {
		s.Prior.Mean = make([]float64, d)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func identityRows(d int) [][]float64 {
	rows := make([][]float64, d)
	for i := range rows {
		rows[i] = make([]float64, d)
		rows[i][i] = 1
	}

	return rows
}

// Validate checks shapes; numeric validity is left to cdi.
func (s *Scenario) Validate() error {
	if _, err := cdi.ParsePrecisionType(s.Precision); err != nil {
		return fmt.Errorf("%w: %w", ErrScenario, err)
	}
	if s.Tree == "" {
		return fmt.Errorf("%w: tree is empty", ErrScenario)
	}
	if s.NumTraits <= 0 || s.DimTrait <= 0 {
		return fmt.Errorf("%w: num_traits and dim_trait must be > 0", ErrScenario)
	}
	if s.Rate < 0 {
		return fmt.Errorf("%w: rate must be >= 0", ErrScenario)
	}
	d := s.DimTrait
	if len(s.Diffusion.Precision) != d {
		return fmt.Errorf("%w: diffusion.precision needs %d rows", ErrScenario, d)
	}
	for _, row := range s.Diffusion.Precision {
		if len(row) != d {
			return fmt.Errorf("%w: diffusion.precision rows need %d columns", ErrScenario, d)
		}
	}
	if len(s.Prior.Mean) != d {
		return fmt.Errorf("%w: prior.mean needs %d values", ErrScenario, d)
	}
	for name, v := range s.Tips {
		if len(v) != s.NumTraits*d {
			return fmt.Errorf("%w: tip %q needs %d values", ErrScenario, name, s.NumTraits*d)
		}
	}

	return nil
}

func (s *Scenario) precisionType() cdi.PrecisionType {
	p, _ := cdi.ParsePrecisionType(s.Precision)
	return p
}

func (s *Scenario) flatPrecision() []float64 {
	d := s.DimTrait
	out := make([]float64, 0, d*d)
	for _, row := range s.Diffusion.Precision {
		out = append(out, row...)
	}

	return out
}

// Result is the outcome of Evaluate.
type Result struct {
	LogLikelihoods   []float64 `yaml:"log_likelihoods"`
	Total            float64   `yaml:"total"`
	DegreesOfFreedom []int     `yaml:"degrees_of_freedom"`
	OuterProducts    []float64 `yaml:"outer_products"`
	Report           string    `yaml:"-"`
}

// session is a tree bound to a seeded integrator.
type session struct {
	scn   *Scenario
	tree  *tree.Tree
	in    *cdi.Integrator
	prior int
}

func newSession(s *Scenario, opts ...cdi.Option) (*session, error) {
	t, err := tree.Parse(s.Tree)
	if err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	prior := t.NumNodes()
	in, err := cdi.New(s.precisionType(), s.NumTraits, s.DimTrait, prior+1, 1, opts...)
	if err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	ss := &session{scn: s, tree: t, in: in, prior: prior}
	if err = ss.seed(); err != nil {
		return nil, err
	}

	return ss, nil
}

// seed loads the diffusion, branch variances, tips and prior.
func (ss *session) seed() error {
	s, t, in := ss.scn, ss.tree, ss.in
	if err := in.SetDiffusionPrecision(0, s.flatPrecision()); err != nil {
		return fmt.Errorf("contdiff: %w", err)
	}
	slots, lengths, err := t.BranchSlots(s.Rate)
	if err != nil {
		return fmt.Errorf("contdiff: %w", err)
	}
	if err = in.UpdateDiffusionMatrices(0, slots, lengths); err != nil {
		return fmt.Errorf("contdiff: %w", err)
	}

	l := in.Layout()
	d := s.DimTrait
	partial := make([]float64, l.PartialLength())
	for i, name := range t.TipNames() {
		values, observed := ss.tipValues(name)
		for tr := 0; tr < s.NumTraits; tr++ {
			if err = l.TipPartial(partial, tr, values[tr*d:(tr+1)*d], observed[tr*d:(tr+1)*d]); err != nil {
				return fmt.Errorf("contdiff: tip %q: %w", name, err)
			}
		}
		if err = in.SetPostOrderPartial(i, partial); err != nil {
			return fmt.Errorf("contdiff: %w", err)
		}
	}
	for tr := 0; tr < s.NumTraits; tr++ {
		if err = l.PriorPartial(partial, tr, s.Prior.Mean, s.Prior.Precision); err != nil {
			return fmt.Errorf("contdiff: %w", err)
		}
	}
	if err = in.SetPostOrderPartial(ss.prior, partial); err != nil {
		return fmt.Errorf("contdiff: %w", err)
	}

	return nil
}

// tipValues returns the trait-major values and observation mask of a tip;
// a tip absent from the scenario is entirely missing.
func (ss *session) tipValues(name string) ([]float64, []bool) {
	n := ss.scn.NumTraits * ss.scn.DimTrait
	values, observed := make([]float64, n), make([]bool, n)
	for k, v := range ss.scn.Tips[name] {
		if v != nil {
			values[k], observed[k] = *v, true
		}
	}

	return values, observed
}

func (ss *session) postOrder(accumulate bool) error {
	ops, count, err := ss.tree.PostOrderOperations()
	if err != nil {
		return fmt.Errorf("contdiff: %w", err)
	}
	if err := ss.in.UpdatePostOrderPartials(ops, count, accumulate); err != nil {
		return fmt.Errorf("contdiff: %w", err)
	}

	return nil
}

// Evaluate computes per-trait root log-likelihoods and the Wishart
// statistics of one full post-order pass.
func Evaluate(s *Scenario, logger *slog.Logger, timing bool) (*Result, error) {
	ss, err := newSession(s, cdi.WithLogger(logger), cdi.WithTiming(timing))
	if err != nil {
		return nil, err
	}
	if err = ss.postOrder(true); err != nil {
		return nil, err
	}

	res := &Result{
		LogLikelihoods:   make([]float64, s.NumTraits),
		DegreesOfFreedom: make([]int, s.NumTraits),
		OuterProducts:    make([]float64, s.NumTraits*s.DimTrait*s.DimTrait),
	}
	if err = ss.in.CalculateRootLogLikelihood(ss.tree.Root(), ss.prior, res.LogLikelihoods, true); err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	if err = ss.in.WishartStatistics(res.DegreesOfFreedom, res.OuterProducts); err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	res.Total = floats.Sum(res.LogLikelihoods)
	res.Report = ss.in.Report()
	logger.Info("evaluated", "tips", ss.tree.NumTips(), "traits", s.NumTraits, "total", res.Total)

	return res, nil
}

// Impute fills the missing tip values of s from the pre-order partials.
// With a nil src the conditional means are used. Requires full precision.
func Impute(s *Scenario, logger *slog.Logger, src rand.Source) (map[string][]float64, error) {
	ss, err := newSession(s, cdi.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err = ss.postOrder(false); err != nil {
		return nil, err
	}
	root := ss.tree.Root()
	if err = ss.in.SeedPreOrderRoot(root, ss.prior); err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	ops, count, err := ss.tree.PreOrderOperations()
	if err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	if err = ss.in.UpdatePreOrderPartials(ops, count); err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}

	names := ss.tree.TipNames()
	values := make([][]float64, len(names))
	observed := make([][]bool, len(names))
	for i, name := range names {
		values[i], observed[i] = ss.tipValues(name)
	}
	op, err := impute.NewOperator(ss.in, impute.NewSampler(src))
	if err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	if err = op.Apply(values, observed); err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}

	out := make(map[string][]float64, len(names))
	filled := 0
	for i, name := range names {
		out[name] = values[i]
		for _, ok := range observed[i] {
			if !ok {
				filled++
			}
		}
	}
	logger.Info("imputed", "tips", len(names), "values", filled)

	return out, nil
}

// Simulate draws tip values under the scenario's model: the root takes the
// prior mean and each trait evolves independently with covariance
// rate·length·D⁻¹ along every branch.
func Simulate(s *Scenario, src rand.Source) (map[string][]float64, error) {
	t, err := tree.Parse(s.Tree)
	if err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}
	d := s.DimTrait
	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(d, s.flatPrecision())); !ok {
		return nil, fmt.Errorf("contdiff: %w", cdi.ErrNotPositiveDefinite)
	}
	var sigma mat.SymDense
	if err = chol.InverseTo(&sigma); err != nil {
		return nil, fmt.Errorf("contdiff: %w", err)
	}

	out := make(map[string][]float64, t.NumTips())
	for _, name := range t.TipNames() {
		out[name] = make([]float64, 0, s.NumTraits*d)
	}
	for tr := 0; tr < s.NumTraits; tr++ {
		nodes, err := t.SimulateBrownian(src, &sigma, s.Prior.Mean, s.Rate)
		if err != nil {
			return nil, fmt.Errorf("contdiff: %w", err)
		}
		for i, name := range t.TipNames() {
			out[name] = append(out[name], nodes[i]...)
		}
	}

	return out, nil
}

// withTips returns a copy of s whose tips are replaced by values.
func (s *Scenario) withTips(values map[string][]float64) *Scenario {
	c := *s
	c.Tips = make(map[string][]*float64, len(values))
	for name := range values {
		row := make([]*float64, len(values[name]))
		for k := range values[name] {
			v := values[name][k]
			row[k] = &v
		}
		c.Tips[name] = row
	}

	return &c
}
