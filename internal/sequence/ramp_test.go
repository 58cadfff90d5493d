package sequence

import "testing"

// TestRampStepsMonotonicTowardTarget is the spec §8 universal property:
// every intermediate ramp value lies strictly between current and
// target (inclusive of target), moving monotonically.
func TestRampStepsMonotonicTowardTarget(t *testing.T) {
	cases := []struct{ current, target, momentum int }{
		{0, 100, 0}, {100, 0, 0}, {20, 180, 7}, {199, 1, 3}, {50, 50, 4},
	}
	for _, c := range cases {
		steps := rampSteps(c.current, c.target, c.momentum, DefaultRampPolicy{})
		if len(steps) == 0 {
			t.Fatalf("rampSteps(%d,%d,%d) returned no steps", c.current, c.target, c.momentum)
		}
		if steps[len(steps)-1] != c.target {
			t.Errorf("rampSteps(%d,%d,%d) last step = %d, want %d", c.current, c.target, c.momentum, steps[len(steps)-1], c.target)
		}
		prev := c.current
		for _, s := range steps {
			if c.current <= c.target {
				if s < prev || s > c.target {
					t.Fatalf("rampSteps(%d,%d,%d): step %d out of [%d,%d]", c.current, c.target, c.momentum, s, prev, c.target)
				}
			} else {
				if s > prev || s < c.target {
					t.Fatalf("rampSteps(%d,%d,%d): step %d out of [%d,%d]", c.current, c.target, c.momentum, s, c.target, prev)
				}
			}
			prev = s
		}
	}
}

func TestRampStepsHighMomentumTakesMoreSteps(t *testing.T) {
	low := rampSteps(0, 100, 0, DefaultRampPolicy{})
	high := rampSteps(0, 100, 7, DefaultRampPolicy{})
	if len(high) <= len(low) {
		t.Errorf("high-momentum ramp took %d steps, low-momentum took %d; want high > low", len(high), len(low))
	}
}

func TestDefaultRampPolicyDelayIncreasesWithMomentum(t *testing.T) {
	p := DefaultRampPolicy{}
	prev := p.Delay(0)
	for m := 1; m <= 7; m++ {
		d := p.Delay(m)
		if d <= prev {
			t.Errorf("Delay(%d) = %v, want > Delay(%d) = %v", m, d, m-1, prev)
		}
		prev = d
	}
}

// TestRPMBucketMatchesStateScenario is spec §8 scenario 2: speed 92
// derives rpm 4, and the sequence package's copy must agree with
// internal/state's.
func TestRPMBucketMatchesStateScenario(t *testing.T) {
	if got := rpmBucket(92); got != 4 {
		t.Errorf("rpmBucket(92) = %d, want 4", got)
	}
	if got := rpmBucket(0); got != 0 {
		t.Errorf("rpmBucket(0) = %d, want 0", got)
	}
	if got := rpmBucket(199); got != 7 {
		t.Errorf("rpmBucket(199) = %d, want 7", got)
	}
}
