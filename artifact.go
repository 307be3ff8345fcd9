package lgptune

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	defaultConfigFile = "default.toml"
	optimalConfigFile = "optimal.toml"
)

// ArtifactStore keeps one best-parameter file per environment under Dir.
// Records are stored verbatim; the store never rewrites them.
type ArtifactStore struct {
	Dir string
}

// Path returns where the artifact of env lives.
func (a ArtifactStore) Path(env string) string {
	return filepath.Join(a.Dir, env+".json")
}

// Exists reports whether env has a persisted artifact.
func (a ArtifactStore) Exists(env string) bool {
	_, err := os.Stat(a.Path(env))

	return err == nil
}

// Save writes params as the artifact of env and returns its path.
func (a ArtifactStore) Save(env, params string) (string, error) {
	path := a.Path(env)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(params), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	return path, nil
}

// Load reads and resolves the artifact of env. A missing artifact yields an
// error matching os.ErrNotExist.
func (a ArtifactStore) Load(env string) (ParameterRecord, error) {
	path := a.Path(env)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rec, err := ParseParameterRecord(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return rec, nil
}

// WriteOptimalConfig merges rec into <configsDir>/<env>/default.toml and
// writes the result to optimal.toml beside it. The program parameters go to
// hyperparameters.program; dependent records also update the parameters of
// the "q_learning" operation. Unknown keys of default.toml are kept.
//
// Returns:
// - string: path of the written file, empty when default.toml is absent
func WriteOptimalConfig(configsDir, env string, rec ParameterRecord) (string, error) {
	folder := filepath.Join(configsDir, env)
	defaultPath := filepath.Join(folder, defaultConfigFile)

	var doc map[string]any
	if _, err := toml.DecodeFile(defaultPath, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("decode %s: %w", defaultPath, err)
	}

	program := rec.Program()

	hyper := subTable(doc, "hyperparameters")
	prog := subTable(hyper, "program")
	prog["max_instructions"] = int64(program.MaxInstructions)
	prog["external_factor"] = program.InstructionGenerator.ExternalFactor

	if dep, ok := rec.(DependentParams); ok {
		mergeQLearning(doc, dep.Consts)
	}

	optimalPath := filepath.Join(folder, optimalConfigFile)

	f, err := os.Create(optimalPath)
	if err != nil {
		return "", err
	}

	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		_ = f.Close()

		return "", fmt.Errorf("encode %s: %w", optimalPath, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", optimalPath, err)
	}

	return optimalPath, nil
}

// subTable returns parent[key] as a table, creating it when missing.
func subTable(parent map[string]any, key string) map[string]any {
	if t, ok := parent[key].(map[string]any); ok {
		return t
	}

	t := make(map[string]any)
	parent[key] = t

	return t
}

func mergeQLearning(doc map[string]any, consts QLearningConsts) {
	var ops []map[string]any

	switch v := doc["operations"].(type) {
	case []map[string]any:
		ops = v
	case []any:
		for _, item := range v {
			if op, ok := item.(map[string]any); ok {
				ops = append(ops, op)
			}
		}
	}

	for _, op := range ops {
		if op["name"] != "q_learning" {
			continue
		}

		params := subTable(op, "parameters")
		for k, v := range consts.Map() {
			params[k] = v
		}

		return
	}
}
