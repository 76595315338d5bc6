package build

// TimingStat is a duration derived from a build's timings.
type TimingStat struct {
	Name    string
	Seconds float64
}

// queueGaps are the waits between a stage finishing and the next one starting.
var queueGaps = [][2]string{
	{EventCreated, startedEvent(StepDownload)},
	{finishedEvent(StepDownload), startedEvent(StepCompile)},
	{finishedEvent(StepCompile), startedEvent(StepUpload)},
	{finishedEvent(StepUpload), startedEvent(StepTidy)},
}

// TimingStats derives the per-stage, queue and total durations of a finished build.
// A stat that depends on a missing event is left out.
func TimingStats(t Timings) []TimingStat {
	var stats []TimingStat

	for _, s := range []Step{StepDownload, StepCompile, StepUpload} {
		if v, ok := t.between(startedEvent(s), finishedEvent(s)); ok {
			stats = append(stats, TimingStat{Name: string(s) + " time", Seconds: v})
		}
	}

	queue, queueOK := 0.0, true
	for _, gap := range queueGaps {
		v, ok := t.between(gap[0], gap[1])
		if !ok {
			queueOK = false
			break
		}
		queue += v
	}
	if queueOK {
		stats = append(stats, TimingStat{Name: "queue time", Seconds: queue})
	}

	if v, ok := t.between(EventCreated, EventDone); ok {
		stats = append(stats, TimingStat{Name: "total time", Seconds: v})
	}

	return stats
}
