package kinematic

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/scenario"
)

// assignScenarios picks one scenario per world according to opt.
func assignScenarios(all []*scenario.Scenario, numWorlds int, opt params.DatasetInitOptions, seed int64) ([]*scenario.Scenario, error) {
	n := len(all)
	if n == 0 {
		return nil, &params.ConfigurationError{Field: "data_path", Reason: "no scenarios available"}
	}

	switch opt {
	case params.FirstN:
		if n < numWorlds {
			return nil, &params.ConfigurationError{
				Field:  "dataset_init",
				Value:  opt.String(),
				Reason: fmt.Sprintf("%d scenarios for %d worlds", n, numWorlds),
			}
		}
		return append([]*scenario.Scenario(nil), all[:numWorlds]...), nil

	case params.RandomN:
		if n < numWorlds {
			return nil, &params.ConfigurationError{
				Field:  "dataset_init",
				Value:  opt.String(),
				Reason: fmt.Sprintf("%d scenarios for %d worlds", n, numWorlds),
			}
		}
		rng := rand.New(rand.NewPCG(uint64(seed), 0x5eed))
		perm := rng.Perm(n)
		out := make([]*scenario.Scenario, numWorlds)
		for w := range out {
			out[w] = all[perm[w]]
		}
		return out, nil

	case params.PadN:
		out := make([]*scenario.Scenario, numWorlds)
		for w := range out {
			out[w] = all[w%n]
		}
		return out, nil

	case params.ExactN:
		if n != numWorlds {
			return nil, &params.ConfigurationError{
				Field:  "dataset_init",
				Value:  opt.String(),
				Reason: fmt.Sprintf("need exactly %d scenarios, found %d", numWorlds, n),
			}
		}
		return append([]*scenario.Scenario(nil), all...), nil
	}

	return nil, &params.ConfigurationError{Field: "dataset_init", Value: opt.String(), Reason: "unknown dataset init option"}
}
