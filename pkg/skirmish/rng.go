package skirmish

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Roller draws dice from a counter-based deterministic stream. Each draw
// derives from (seed, counter), so replaying a snapshot with the same seed
// and roll count reproduces every roll exactly, on any host. The counter
// lives in Meta.RollCount and travels with the state, which keeps the
// authority and replicas in lockstep.
type Roller struct {
	seed    uint64
	count   uint64
	records []DiceRecord
}

// NewRoller creates a roller positioned at the snapshot's roll counter.
func NewRoller(meta Meta) *Roller {
	return &Roller{seed: meta.Seed, count: meta.RollCount}
}

// Count returns the number of dice drawn so far (including draws made
// before this roller was created).
func (r *Roller) Count() uint64 { return r.count }

// Records returns the audit records accumulated by this roller.
func (r *Roller) Records() []DiceRecord { return r.records }

// splitmix64 is the finalizer from Vigna's SplitMix64 generator. One
// evaluation per die keeps the stream stateless apart from the counter.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func (r *Roller) die(sides int) int {
	v := splitmix64(r.seed ^ (r.count * 0x2545f4914f6cdd1d))
	r.count++
	return int(v%uint64(sides)) + 1
}

// D6 rolls n six-sided dice and records them under the given context.
// The success threshold and modifier labels are recorded for the audit
// trail; a raw roll of 1 always fails and a raw 6 always succeeds.
func (r *Roller) D6(n int, context string, threshold int, modifiers []string) []int {
	return r.d6(n, context, threshold, 7, modifiers)
}

// D6Crit is D6 with a critical threshold: raw rolls at or above it count
// as successes in the record even when the ordinary threshold misses, so
// the audit matches a resolution that treats criticals as automatic.
func (r *Roller) D6Crit(n int, context string, threshold, critAt int, modifiers []string) []int {
	return r.d6(n, context, threshold, critAt, modifiers)
}

func (r *Roller) d6(n int, context string, threshold, critAt int, modifiers []string) []int {
	rolls := make([]int, n)
	successes := 0
	for i := range rolls {
		rolls[i] = r.die(6)
		if rolls[i] >= critAt || countsAsSuccess(rolls[i], threshold) {
			successes++
		}
	}
	r.records = append(r.records, DiceRecord{
		Context:          context,
		RollsRaw:         rolls,
		Successes:        successes,
		ModifiersApplied: modifiers,
	})
	return rolls
}

// Sum2D6 rolls 2D6 and records the total as successes for contexts where
// the result is a distance or test total rather than a pass count.
func (r *Roller) Sum2D6(context string, modifiers []string) int {
	a, b := r.die(6), r.die(6)
	r.records = append(r.records, DiceRecord{
		Context:          context,
		RollsRaw:         []int{a, b},
		Successes:        a + b,
		ModifiersApplied: modifiers,
	})
	return a + b
}

// countsAsSuccess applies the universal dice rule: an unmodified 1 always
// fails, an unmodified 6 always succeeds, otherwise compare to threshold.
func countsAsSuccess(roll, threshold int) bool {
	if roll == 1 {
		return false
	}
	if roll == 6 {
		return true
	}
	return roll >= threshold
}

var diceExprRe = regexp.MustCompile(`(?i)^\s*(\d+)?\s*d\s*(\d+)\s*(?:([+\-])\s*(\d+))?\s*$`)

// RollExpr evaluates a dice expression: a plain integer ("2"), or
// NdM with an optional additive modifier ("D6", "2D6+1", "D3-1").
// Rolls are recorded under the given context.
func (r *Roller) RollExpr(expr, context string) (int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("empty dice expression")
	}
	if n, err := strconv.Atoi(expr); err == nil {
		return n, nil
	}
	m := diceExprRe.FindStringSubmatch(expr)
	if m == nil {
		return 0, fmt.Errorf("bad dice expression %q", expr)
	}
	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	if sides < 2 || count < 1 || count > 100 {
		return 0, fmt.Errorf("bad dice expression %q", expr)
	}
	total := 0
	rolls := make([]int, count)
	for i := 0; i < count; i++ {
		rolls[i] = r.die(sides)
		total += rolls[i]
	}
	if m[3] != "" {
		k, _ := strconv.Atoi(m[4])
		if m[3] == "-" {
			k = -k
		}
		total += k
	}
	if total < 0 {
		total = 0
	}
	r.records = append(r.records, DiceRecord{
		Context:   context,
		RollsRaw:  rolls,
		Successes: total,
	})
	return total, nil
}
