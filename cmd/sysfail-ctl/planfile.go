package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"sysfail-go/plan"
)

// jsonProbability mirrors plan.Probability for on-disk serialization.
type jsonProbability struct {
	P         float64 `json:"p"`
	AfterBias float64 `json:"after_bias"`
}

// jsonOutcome mirrors plan.Outcome, minus the Eligible predicate: a
// predicate is a function, not data, so plan files describe only the
// statistical shape of an outcome. Callers needing per-invocation
// eligibility attach it programmatically via the native API.
type jsonOutcome struct {
	Fail         jsonProbability    `json:"fail"`
	Delay        jsonProbability    `json:"delay"`
	MaxDelayUsec int64              `json:"max_delay_usec"`
	ErrorWeights map[string]float64 `json:"error_weights"`
}

// jsonPlan mirrors plan.Plan, keyed by syscall number as a JSON object
// key (JSON object keys are always strings).
type jsonPlan struct {
	Outcomes map[string]jsonOutcome `json:"outcomes"`
}

// loadPlanFile reads and parses a plan description from path.
func loadPlanFile(path string) (jsonPlan, error) {
	var jp jsonPlan
	data, err := os.ReadFile(path)
	if err != nil {
		return jp, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &jp); err != nil {
		return jp, fmt.Errorf("parse %s: %w", path, err)
	}
	return jp, nil
}

// toPlan converts a parsed plan file into a plan.Plan. ThreadEligible and
// ThreadDiscovery are left at their zero values; Plan.Validate supplies
// the always-eligible/no-discovery defaults, which is the correct
// behavior for offline validation of the syscall-outcome shape.
func (jp jsonPlan) toPlan() (plan.Plan, error) {
	p := plan.Plan{Outcomes: make(map[int]plan.Outcome, len(jp.Outcomes))}
	for key, jo := range jp.Outcomes {
		nr, err := strconv.Atoi(key)
		if err != nil {
			return plan.Plan{}, fmt.Errorf("outcome key %q is not a syscall number: %w", key, err)
		}
		weights := make(map[int]float64, len(jo.ErrorWeights))
		for errnoKey, weight := range jo.ErrorWeights {
			errno, err := strconv.Atoi(errnoKey)
			if err != nil {
				return plan.Plan{}, fmt.Errorf("error_weights key %q is not an errno: %w", errnoKey, err)
			}
			weights[errno] = weight
		}
		p.Outcomes[nr] = plan.Outcome{
			Fail:         plan.Probability{P: jo.Fail.P, AfterBias: jo.Fail.AfterBias},
			Delay:        plan.Probability{P: jo.Delay.P, AfterBias: jo.Delay.AfterBias},
			MaxDelay:     time.Duration(jo.MaxDelayUsec) * time.Microsecond,
			ErrorWeights: weights,
		}
	}
	return p, nil
}
