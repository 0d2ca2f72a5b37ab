package mp4

const microsPerSecond = 1_000_000

// ticksToMicros converts a timestamp in track ticks to microseconds
func ticksToMicros(ticks int64, timeScale uint32) int64 {
	if timeScale == 0 {
		return 0
	}
	return divRound(ticks*microsPerSecond, int64(timeScale))
}

// microsToTicks converts a timestamp in microseconds to track ticks.
// For timescales up to 1 MHz, microsToTicks(ticksToMicros(t)) == t.
func microsToTicks(us int64, timeScale uint32) int64 {
	return divRound(us*int64(timeScale), microsPerSecond)
}

// divRound divides rounding half away from zero
func divRound(n, d int64) int64 {
	if (n < 0) != (d < 0) {
		return (n - d/2) / d
	}
	return (n + d/2) / d
}
