// Package planner pre-computes the chapter-type sequence for an adventure
// under the structural rules: a fixed STORY/CONCLUSION frame, a capped,
// non-adjacent placement of LESSON chapters, and REFLECT chapters that may
// only follow a LESSON and must themselves be followed by STORY.
package planner

import (
	"fmt"
	"math/rand"
	"sort"

	"learningodyssey/internal/adventure"
)

// Result is the planner's output: the chosen sequence plus a human-readable
// account of any constraint that had to be relaxed to produce a valid plan.
type Result struct {
	Types   []adventure.ChapterType
	Relaxed []string
}

// Plan computes a deterministic chapter-type sequence for an adventure of
// storyLength chapters, given availableLessonCount distinct lesson
// questions and a seed derived from the session identifier (see Seed).
// Resumed sessions reusing the same seed get the same sequence.
func Plan(storyLength, availableLessonCount int, seed int64) Result {
	if storyLength < 4 {
		// Degenerate input; nothing to plan beyond the fixed frame. Not a
		// real deployment shape (story_length is fixed at 10) but kept safe
		// rather than panicking.
		types := make([]adventure.ChapterType, storyLength)
		for i := range types {
			types[i] = adventure.ChapterStory
		}
		if storyLength > 0 {
			types[storyLength-1] = adventure.ChapterConclusion
		}
		return Result{Types: types}
	}

	L := storyLength
	types := make([]adventure.ChapterType, L)
	occupied := make([]bool, L)
	for i := range types {
		types[i] = adventure.ChapterStory
	}
	types[L-1] = adventure.ChapterConclusion
	occupied[0] = true
	occupied[L-2] = true
	occupied[L-1] = true

	var relaxed []string

	// Candidate slots for LESSON: every position except the fixed frame.
	candidates := make([]int, 0, L-3)
	for i := 1; i <= L-3; i++ {
		candidates = append(candidates, i)
	}

	maxLessons := (L - 3) / 2
	lessonCount := maxLessons
	if availableLessonCount < lessonCount {
		relaxed = append(relaxed, fmt.Sprintf(
			"reduced lesson count from %d to %d: only %d distinct lesson question(s) available",
			maxLessons, availableLessonCount, availableLessonCount))
		lessonCount = availableLessonCount
	}
	if lessonCount < 0 {
		lessonCount = 0
	}

	// Skeleton: every other candidate, guaranteeing pairwise distance >= 2
	// (rule 5 — no two LESSONs adjacent).
	skeleton := make([]int, 0, (len(candidates)+1)/2)
	for i := 0; i < len(candidates); i += 2 {
		skeleton = append(skeleton, candidates[i])
	}

	// Reserve the last skeleton slot out of the selection pool when there's
	// slack: its successor collides with the fixed STORY at L-2, so a
	// LESSON landing there can never carry a following REFLECT. Dropping it
	// from the pool (when we don't need every skeleton slot anyway) leaves
	// more room for rule 6's REFLECT placement.
	pool := skeleton
	if lessonCount < len(skeleton) && len(skeleton) > 1 {
		pool = skeleton[:len(skeleton)-1]
	}
	if lessonCount > len(pool) {
		pool = skeleton
	}

	rng := rand.New(rand.NewSource(seed))
	shuffled := append([]int(nil), pool...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	if lessonCount > len(shuffled) {
		lessonCount = len(shuffled)
	}
	chosen := append([]int(nil), shuffled[:lessonCount]...)
	sort.Ints(chosen)

	chosenSet := make(map[int]bool, len(chosen))
	for _, p := range chosen {
		types[p] = adventure.ChapterLesson
		occupied[p] = true
		chosenSet[p] = true
	}

	// Rule 6/7: half (floored) of LESSONs are followed by REFLECT, but at
	// least one REFLECT must exist whenever any LESSON does.
	reflectWanted := lessonCount / 2
	if lessonCount >= 1 && reflectWanted == 0 {
		reflectWanted = 1
	}

	reflectPlaced := 0
	for _, p := range chosen {
		if reflectPlaced >= reflectWanted {
			break
		}
		next := p + 1
		nextNext := p + 2
		if next >= L || occupied[next] || chosenSet[nextNext] {
			continue
		}
		types[next] = adventure.ChapterReflect
		occupied[next] = true
		reflectPlaced++
	}

	if reflectPlaced < reflectWanted {
		relaxed = append(relaxed, fmt.Sprintf(
			"placed only %d of %d desired REFLECT chapters: insufficient non-conflicting slots",
			reflectPlaced, reflectWanted))
	}

	return Result{Types: types, Relaxed: relaxed}
}

// Seed derives a deterministic planner seed from a session identifier so
// that a resumed session reconstructs the identical plan.
func Seed(sessionID string) int64 {
	var h uint64 = 14695981039346656037 // FNV-1a offset basis
	for i := 0; i < len(sessionID); i++ {
		h ^= uint64(sessionID[i])
		h *= 1099511628211 // FNV-1a prime
	}
	return int64(h)
}
