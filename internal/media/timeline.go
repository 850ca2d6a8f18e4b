package media

import "fmt"

// The dubbing timeline places each synthesized clip at its segment's start
// on the original video's clock. Gaps become silence. A clip that does not
// fit its window is sped up, but never beyond maxTempo: past that point
// speech stops sounding human, and overrun into the following gap is the
// lesser evil.
const (
	maxTempo = 1.5
	minGap   = 0.01 // gaps below this are timing jitter, not real silence
)

// Clip is one synthesized audio file with the window it belongs to.
type Clip struct {
	Path      string
	SlotStart float64
	SlotEnd   float64
	Duration  float64 // measured duration of the synthesized audio
}

// Entry is one piece of the assembled track, in order.
type Entry struct {
	// Silence duration in seconds; zero for clip entries.
	Silence float64
	// Clip path and playback tempo; Tempo 1 means unchanged.
	Path  string
	Tempo float64
}

type Plan struct {
	Entries []Entry
	// Total planned duration of the assembled track.
	Duration float64
}

// PlanTimeline lays clips onto the video timeline. Clips must be sorted by
// SlotStart and videoDuration covers the full original video, so the dubbed
// track can be padded to it and the mux never truncates.
func PlanTimeline(clips []Clip, videoDuration float64) (*Plan, error) {
	plan := &Plan{}
	cursor := 0.0

	for i, c := range clips {
		if c.Duration <= 0 {
			return nil, fmt.Errorf("clip %d (%s) has no duration", i, c.Path)
		}
		if i > 0 && c.SlotStart < clips[i-1].SlotStart {
			return nil, fmt.Errorf("clip %d out of order", i)
		}

		start := c.SlotStart
		if start < cursor {
			// previous clip overran into this slot
			start = cursor
		}

		if gap := start - cursor; gap >= minGap {
			plan.Entries = append(plan.Entries, Entry{Silence: gap})
			cursor = start
		}

		// the clip may stretch until the next clip begins
		windowEnd := videoDuration
		if i+1 < len(clips) {
			windowEnd = clips[i+1].SlotStart
		}
		if windowEnd < c.SlotEnd {
			windowEnd = c.SlotEnd
		}

		available := windowEnd - cursor
		tempo := 1.0
		if available > 0 && c.Duration > available {
			tempo = c.Duration / available
			if tempo > maxTempo {
				tempo = maxTempo
			}
		}

		plan.Entries = append(plan.Entries, Entry{Path: c.Path, Tempo: tempo})
		cursor += c.Duration / tempo
	}

	if pad := videoDuration - cursor; pad >= minGap {
		plan.Entries = append(plan.Entries, Entry{Silence: pad})
		cursor = videoDuration
	}

	plan.Duration = cursor
	return plan, nil
}
