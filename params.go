package lgptune

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InstructionGeneratorParameters mirrors the evaluator's instruction
// generator settings.
type InstructionGeneratorParameters struct {
	NExtras        int     `json:"n_extras"`
	ExternalFactor float64 `json:"external_factor"`
	NActions       int     `json:"n_actions,omitempty"`
	NInputs        int     `json:"n_inputs,omitempty"`
}

// ProgramParameters mirrors the evaluator's program settings.
type ProgramParameters struct {
	MaxInstructions      int                            `json:"max_instructions"`
	InstructionGenerator InstructionGeneratorParameters `json:"instruction_generator_parameters"`
}

// QLearningConsts are the Q-learning constants tuned by dependent phases.
type QLearningConsts struct {
	Alpha        float64 `json:"alpha"`
	Gamma        float64 `json:"gamma"`
	Epsilon      float64 `json:"epsilon"`
	AlphaDecay   float64 `json:"alpha_decay"`
	EpsilonDecay float64 `json:"epsilon_decay"`
}

// Map returns the constants keyed by their parameter names.
func (c QLearningConsts) Map() map[string]float64 {
	return map[string]float64{
		"alpha":         c.Alpha,
		"gamma":         c.Gamma,
		"epsilon":       c.Epsilon,
		"alpha_decay":   c.AlphaDecay,
		"epsilon_decay": c.EpsilonDecay,
	}
}

// ParameterRecord is a persisted best-parameter record, resolved once at load
// time into either BaseParams or DependentParams.
type ParameterRecord interface {
	// Program returns the program parameters of the record.
	Program() ProgramParameters

	// Raw returns the record exactly as the evaluator printed it.
	Raw() string

	isParameterRecord()
}

// BaseParams is the record of a base (plain LGP) phase.
type BaseParams struct {
	Parameters ProgramParameters
	raw        string
}

func (b BaseParams) Program() ProgramParameters { return b.Parameters }
func (b BaseParams) Raw() string                { return b.raw }
func (BaseParams) isParameterRecord()           {}

// DependentParams is the record of a dependent (Q-learning) phase. Its
// program parameters are nested one level deeper next to the constants.
type DependentParams struct {
	Parameters ProgramParameters
	Consts     QLearningConsts
	raw        string
}

func (d DependentParams) Program() ProgramParameters { return d.Parameters }
func (d DependentParams) Raw() string                { return d.raw }
func (DependentParams) isParameterRecord()           {}

// ParseParameterRecord resolves a serialized record. A record whose
// "program_parameters" object itself holds "program_parameters" is a
// dependent record; otherwise it is a base record.
func ParseParameterRecord(raw string) (ParameterRecord, error) {
	raw = strings.TrimSpace(raw)

	var outer struct {
		ProgramParameters json.RawMessage `json:"program_parameters"`
	}

	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if len(outer.ProgramParameters) == 0 || string(outer.ProgramParameters) == "null" {
		return nil, fmt.Errorf("%w: missing program_parameters", ErrInvalidRecord)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(outer.ProgramParameters, &keys); err != nil {
		return nil, fmt.Errorf("%w: program_parameters: %v", ErrInvalidRecord, err)
	}

	if _, nested := keys["program_parameters"]; nested {
		var inner struct {
			ProgramParameters ProgramParameters `json:"program_parameters"`
			Consts            QLearningConsts   `json:"consts"`
		}

		if err := json.Unmarshal(outer.ProgramParameters, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}

		return DependentParams{
			Parameters: inner.ProgramParameters,
			Consts:     inner.Consts,
			raw:        raw,
		}, nil
	}

	var program ProgramParameters
	if err := json.Unmarshal(outer.ProgramParameters, &program); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	return BaseParams{Parameters: program, raw: raw}, nil
}
