package lgptune

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// Evaluator override keys of the tuned hyperparameters.
const (
	OverrideMaxInstructions = "hyperparameters.program.max_instructions"
	OverrideExternalFactor  = "hyperparameters.program.external_factor"
	overrideQLearningPrefix = "operations.q_learning."
)

// qLearningParams lists the constants searched by dependent phases, in the
// order they are passed to the evaluator.
var qLearningParams = []string{"alpha", "alpha_decay", "gamma", "epsilon", "epsilon_decay"}

// Override is one name/value flag pair passed to the evaluator.
type Override struct {
	Name  string
	Key   string
	Value string
}

// String renders the pair as "key=value".
func (o Override) String() string {
	return o.Key + "=" + o.Value
}

// ParameterSpace defines the ranges a trial may propose, plus constants that
// are passed along unchanged.
type ParameterSpace struct {
	params []ParameterSpec
	consts []ConstantSpec
}

// NewParameterSpace returns an empty space.
func NewParameterSpace() *ParameterSpace {
	return &ParameterSpace{}
}

// AddInt declares an integer parameter.
func (s *ParameterSpace) AddInt(name, override string, r ParameterRange[int64]) *ParameterSpace {
	s.params = append(s.params, ParameterSpec{
		Name:     name,
		Kind:     KindInt,
		Range:    ParameterRange[float64]{Min: float64(r.Min), Max: float64(r.Max)},
		Override: override,
	})

	return s
}

// AddFloat declares a floating-point parameter.
func (s *ParameterSpace) AddFloat(name, override string, r ParameterRange[float64]) *ParameterSpace {
	s.params = append(s.params, ParameterSpec{
		Name:     name,
		Kind:     KindFloat,
		Range:    r,
		Override: override,
	})

	return s
}

// AddConstant declares a fixed value.
func (s *ParameterSpace) AddConstant(c ConstantSpec) *ParameterSpace {
	s.consts = append(s.consts, c)

	return s
}

// Params returns a copy of the searched parameters.
func (s *ParameterSpace) Params() []ParameterSpec {
	return append([]ParameterSpec(nil), s.params...)
}

// Constants returns a copy of the fixed parameters.
func (s *ParameterSpace) Constants() []ConstantSpec {
	return append([]ConstantSpec(nil), s.consts...)
}

// Dim returns the number of searched parameters.
func (s *ParameterSpace) Dim() int {
	return len(s.params)
}

// Validate checks for empty or duplicate names and inverted ranges.
func (s *ParameterSpace) Validate() error {
	seen := make(map[string]struct{}, len(s.params)+len(s.consts))

	check := func(name string) error {
		if name == "" {
			return fmt.Errorf("%w: parameter without a name", ErrInvalidConfig)
		}

		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate parameter %q", ErrInvalidConfig, name)
		}

		seen[name] = struct{}{}

		return nil
	}

	for _, p := range s.params {
		if err := check(p.Name); err != nil {
			return err
		}

		if !p.Range.Valid() {
			return fmt.Errorf("%w: parameter %q has min %v > max %v", ErrInvalidConfig, p.Name, p.Range.Min, p.Range.Max)
		}
	}

	for _, c := range s.consts {
		if err := check(c.Name); err != nil {
			return err
		}
	}

	return nil
}

// Sample draws a uniformly random proposal. rng is not synchronized; callers
// serialize access.
func (s *ParameterSpace) Sample(rng *rand.Rand) Proposal {
	values := make(map[string]float64, len(s.params)+len(s.consts))

	for _, p := range s.params {
		switch p.Kind {
		case KindInt:
			lo, hi := int64(p.Range.Min), int64(p.Range.Max)
			values[p.Name] = float64(lo + rng.Int63n(hi-lo+1))
		default:
			values[p.Name] = p.Range.Min + rng.Float64()*(p.Range.Max-p.Range.Min)
		}
	}

	s.fillConstants(values)

	return Proposal{values: values}
}

// FromUnit maps a point of the unit cube, one coordinate per searched
// parameter, onto the space. Integer parameters are rounded onto their
// grid.
func (s *ParameterSpace) FromUnit(u []float64) Proposal {
	values := make(map[string]float64, len(s.params)+len(s.consts))

	for i, p := range s.params {
		x := clamp(u[i], 0, 1)
		width := p.Range.Max - p.Range.Min

		switch p.Kind {
		case KindInt:
			v := p.Range.Min + math.Floor(x*(width+1))
			values[p.Name] = clamp(v, p.Range.Min, p.Range.Max)
		default:
			values[p.Name] = p.Range.Min + x*width
		}
	}

	s.fillConstants(values)

	return Proposal{values: values}
}

// ToUnit maps the searched parameters of p into the unit cube.
func (s *ParameterSpace) ToUnit(p Proposal) []float64 {
	u := make([]float64, len(s.params))

	for i, spec := range s.params {
		v, _ := p.Get(spec.Name)
		width := spec.Range.Max - spec.Range.Min

		if width == 0 {
			continue
		}

		u[i] = clamp((v-spec.Range.Min)/width, 0, 1)
	}

	return u
}

// Contains reports whether every searched value of p lies within bounds and
// integer parameters hold whole numbers.
func (s *ParameterSpace) Contains(p Proposal) bool {
	for _, spec := range s.params {
		v, ok := p.Get(spec.Name)
		if !ok || !spec.Range.Contains(v) {
			return false
		}

		if spec.Kind == KindInt && v != math.Trunc(v) {
			return false
		}
	}

	return true
}

// Overrides renders p as evaluator flag pairs: constants first, then the
// searched parameters in declaration order.
func (s *ParameterSpace) Overrides(p Proposal) []Override {
	out := make([]Override, 0, len(s.params)+len(s.consts))

	for _, c := range s.consts {
		out = append(out, Override{Name: c.Name, Key: c.Override, Value: formatValue(c.Kind, c.Value)})
	}

	for _, spec := range s.params {
		v, _ := p.Get(spec.Name)
		out = append(out, Override{Name: spec.Name, Key: spec.Override, Value: formatValue(spec.Kind, v)})
	}

	return out
}

func (s *ParameterSpace) fillConstants(values map[string]float64) {
	for _, c := range s.consts {
		values[c.Name] = c.Value
	}
}

func formatValue(kind ParamKind, v float64) string {
	if kind == KindInt {
		return strconv.FormatInt(int64(v), 10)
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

//////
// Phase spaces.
//////

// BaseSpace is the full space searched by a base phase.
func BaseSpace() *ParameterSpace {
	return NewParameterSpace().
		AddInt("max_instructions", OverrideMaxInstructions, ParameterRange[int64]{Min: 1, Max: 100}).
		AddFloat("external_factor", OverrideExternalFactor, ParameterRange[float64]{Min: 0, Max: 100})
}

// DependentSpace fixes the base phase's tuned program parameters as
// constants and searches only the Q-learning constants.
func DependentSpace(base ParameterRecord) *ParameterSpace {
	program := base.Program()

	s := NewParameterSpace().
		AddConstant(ConstantSpec{
			Name:     "max_instructions",
			Kind:     KindInt,
			Value:    float64(program.MaxInstructions),
			Override: OverrideMaxInstructions,
		}).
		AddConstant(ConstantSpec{
			Name:     "external_factor",
			Kind:     KindFloat,
			Value:    program.InstructionGenerator.ExternalFactor,
			Override: OverrideExternalFactor,
		})

	for _, name := range qLearningParams {
		s.AddFloat(name, overrideQLearningPrefix+name, ParameterRange[float64]{Min: 0, Max: 1})
	}

	return s
}
