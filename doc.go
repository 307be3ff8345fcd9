// Package lgptune tunes the numeric hyperparameters of an external
// program-evolution engine. It runs many concurrent optimization trials
// against the engine's executable and keeps the best result found.
//
// # Features
//
//   - Concurrent search: a fixed-size worker pool where every worker runs its
//     own budget of trials against one shared study
//   - Noise-robust scores: every trial runs the evaluator several times and
//     keeps the deterministic lower median
//   - Threshold pruning per environment domain
//   - Thread-safe tracking of the best (score, parameters) pair
//   - Dependent phases: Q-learning phases reuse the program parameters tuned
//     by their base phase and only search their own constants
//   - Bayesian proposals: a Gaussian Process surrogate with UCB, PI, EI or
//     Thompson Sampling acquisition, or plain random search
//   - Study storage in memory, SQLite or PostgreSQL
//
// # Evaluator contract
//
// The evaluator is invoked as
//
//	lgp experiment run <config> --override <key>=<value> ...
//
// It must leave its error stream empty. Its standard output holds zero or
// more progress scores, one final score (possibly "nan"), and one trailing
// line with the serialized parameter record, which is persisted verbatim.
//
// # Usage
//
//	cfg := lgptune.DefaultConfig()
//	cfg.NTrials, cfg.NThreads, cfg.MedianTrials = 10, 4, 5
//
//	storage, err := lgptune.NewStorage(cfg.Storage)
//	if err != nil {
//	    return err
//	}
//	defer lgptune.CloseIfSupported(storage)
//
//	coordinator, err := lgptune.NewCoordinator(ctx, cfg, storage)
//	if err != nil {
//	    return err
//	}
//
//	chainer := lgptune.NewPhaseChainer(coordinator, lgptune.DirCatalog{Dir: cfg.ConfigsDir}, nil)
//	results, err := chainer.RunAll(ctx)
//
// # Budget
//
// Total trials per session = NTrials * NThreads, each costing MedianTrials
// evaluator runs. Threads multiply the sampled budget; they do not split it.
//
// # Failure semantics
//
// A failing evaluator run fails its trial, its worker and the session. There
// is no retry. The best record gathered before the failure is still saved.
package lgptune
