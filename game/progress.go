package game

import "time"

const charsPerWord = 5

// Wpm is zero until the first keystroke. Elapsed time is floored at one
// second so the first few keystrokes don't report absurd speeds.
func Wpm(typingIndex int, startedAt, now time.Time) float64 {
	if typingIndex <= 0 || startedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(startedAt)
	if elapsed < time.Second {
		elapsed = time.Second
	}
	return float64(typingIndex) / charsPerWord / elapsed.Minutes()
}

type Accuracy struct {
	Correct   int
	Incorrect int
}

func (a *Accuracy) Record(correct bool) {
	if correct {
		a.Correct++
	} else {
		a.Incorrect++
	}
}

func (a *Accuracy) Reset() {
	*a = Accuracy{}
}

// Percent is 100 when nothing has been typed yet.
func (a Accuracy) Percent() float64 {
	total := a.Correct + a.Incorrect
	if total == 0 {
		return 100
	}
	return float64(a.Correct) / float64(total) * 100
}
