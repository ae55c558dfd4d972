package game

import "math"

const (
	baseScore     = 20.0
	sweetSpot     = 3
	sweetSpotStep = 10.0
	minSkillGap   = 10.0
	gapPower      = 1.5
)

// trafficTier trades match forming speed against match quality. Busier
// servers can afford to be pickier.
type trafficTier struct {
	onePlayerBonus float64
	sweetSpotBonus float64
	gapMultiplier  float64
	minScore       float64
}

var (
	lowTraffic    = trafficTier{onePlayerBonus: 40, sweetSpotBonus: 20, gapMultiplier: 0.05, minScore: 20}
	mediumTraffic = trafficTier{onePlayerBonus: 20, sweetSpotBonus: 30, gapMultiplier: 0.1, minScore: 35}
	highTraffic   = trafficTier{onePlayerBonus: 0, sweetSpotBonus: 40, gapMultiplier: 0.2, minScore: 45}
)

func tierFor(onlinePlayers int) trafficTier {
	switch {
	case onlinePlayers < 20:
		return lowTraffic
	case onlinePlayers < 100:
		return mediumTraffic
	default:
		return highTraffic
	}
}

func eligible(desc RoomDescription) bool {
	return desc.Type == TypeQuickplay && desc.Status == StatusWaiting && desc.PlayersCount < desc.MaxPlayers
}

func scoreRoom(desc RoomDescription, callerWpm float64, tier trafficTier) float64 {
	score := baseScore
	if desc.PlayersCount == 1 {
		score += tier.onePlayerBonus
	}
	distance := math.Abs(float64(desc.PlayersCount - sweetSpot))
	score += math.Max(0, tier.sweetSpotBonus-distance*sweetSpotStep)

	gap := math.Max(0, math.Abs(desc.AvgWpm-callerWpm)-minSkillGap)
	score -= math.Pow(gap, gapPower) * tier.gapMultiplier
	return score
}

// FindBestMatch returns the code of the best eligible room, or false when
// no room clears the tier's threshold and the caller should host instead.
// Ties go to the first room seen.
func FindBestMatch(rooms []RoomDescription, callerWpm float64, onlinePlayers int) (string, bool) {
	tier := tierFor(onlinePlayers)

	bestCode := ""
	bestScore := math.Inf(-1)
	for _, desc := range rooms {
		if !eligible(desc) {
			continue
		}
		if score := scoreRoom(desc, callerWpm, tier); score > bestScore {
			bestScore = score
			bestCode = desc.Code
		}
	}
	if bestCode == "" || bestScore < tier.minScore {
		return "", false
	}
	return bestCode, true
}
