// Package standings computes tournament standings as a pure function of
// the completed-match log. Given the same inputs it always produces the
// same output, so recomputation is idempotent and safe to re-run.
package standings

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Dosada05/swiss-engine/models"
)

// ErrMatchMissingWinner is returned when a completed non-bye match has no
// winner recorded. This is a data-integrity problem: the calculator never
// defaults it away, the caller marks the tournament for manual review.
var ErrMatchMissingWinner = errors.New("completed match has no winner")

const (
	pointsPerWin = 3

	// winPercentageFloor is applied to a player's own match/game win
	// percentage when they have played nothing yet, and as a lower bound
	// on each opponent's percentage when averaging tie-breaks. Keeps the
	// math defined for round one and avoids rewarding unplayed rounds.
	winPercentageFloor = 0.25
)

// Entrant identifies one registered participant for the calculator.
type Entrant struct {
	ParticipantID int
	TiebreakSeed  int
	Dropped       bool
}

// Result is one completed match. P2ID == nil marks a bye: P1 gets a match
// win and no opponent-history entry. WinnerID must be set for non-byes.
type Result struct {
	RoundNumber int
	P1ID        int
	P2ID        *int
	WinnerID    *int
	P1GameWins  int
	P2GameWins  int
}

type Input struct {
	TournamentID int
	Entrants     []Entrant
	Results      []Result
}

type accumulator struct {
	stats   *models.PlayerStats
	seed    int
	dropped bool
	// flooredMWP is the player's own floor-adjusted match win percentage,
	// the value opponents average over (never re-floored recursively).
	flooredMWP float64
}

// Compute folds the completed-match log into ranked PlayerStats. The
// returned slice is ordered by standing; dropped participants keep their
// accumulated stats but always rank below active ones.
func Compute(in Input) ([]*models.PlayerStats, error) {
	byID := make(map[int]*accumulator, len(in.Entrants))
	order := make([]int, 0, len(in.Entrants))
	for _, e := range in.Entrants {
		byID[e.ParticipantID] = &accumulator{
			stats: &models.PlayerStats{
				TournamentID:    in.TournamentID,
				ParticipantID:   e.ParticipantID,
				OpponentHistory: []int{},
			},
			seed:    e.TiebreakSeed,
			dropped: e.Dropped,
		}
		order = append(order, e.ParticipantID)
	}

	// Fold matches in round order so opponent_history stays ordered.
	results := make([]Result, len(in.Results))
	copy(results, in.Results)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RoundNumber < results[j].RoundNumber
	})

	for _, r := range results {
		p1, ok := byID[r.P1ID]
		if !ok {
			return nil, fmt.Errorf("result in round %d references unknown participant %d", r.RoundNumber, r.P1ID)
		}
		if r.P2ID == nil {
			// Bye: an unplayed win, no opponent-history impact.
			p1.stats.MatchesPlayed++
			p1.stats.MatchWins++
			p1.stats.HasReceivedBye = true
			continue
		}
		p2, ok := byID[*r.P2ID]
		if !ok {
			return nil, fmt.Errorf("result in round %d references unknown participant %d", r.RoundNumber, *r.P2ID)
		}
		if r.WinnerID == nil {
			return nil, fmt.Errorf("%w: round %d, participants %d vs %d",
				ErrMatchMissingWinner, r.RoundNumber, r.P1ID, *r.P2ID)
		}

		p1.stats.MatchesPlayed++
		p2.stats.MatchesPlayed++
		p1.stats.GameWins += r.P1GameWins
		p1.stats.GameLosses += r.P2GameWins
		p2.stats.GameWins += r.P2GameWins
		p2.stats.GameLosses += r.P1GameWins
		p1.stats.OpponentHistory = append(p1.stats.OpponentHistory, *r.P2ID)
		p2.stats.OpponentHistory = append(p2.stats.OpponentHistory, r.P1ID)

		switch *r.WinnerID {
		case r.P1ID:
			p1.stats.MatchWins++
			p2.stats.MatchLosses++
		case *r.P2ID:
			p2.stats.MatchWins++
			p1.stats.MatchLosses++
		default:
			return nil, fmt.Errorf("result in round %d has winner %d who is not a participant of the match",
				r.RoundNumber, *r.WinnerID)
		}
	}

	// First pass: own percentages.
	for _, acc := range byID {
		s := acc.stats
		s.MatchPoints = pointsPerWin * s.MatchWins
		if s.MatchesPlayed > 0 {
			s.MatchWinPercentage = float64(s.MatchWins) / float64(s.MatchesPlayed)
		} else {
			s.MatchWinPercentage = winPercentageFloor
		}
		acc.flooredMWP = s.MatchWinPercentage
		if acc.flooredMWP < winPercentageFloor {
			acc.flooredMWP = winPercentageFloor
		}
		games := s.GameWins + s.GameLosses
		if games > 0 {
			s.GameWinPercentage = float64(s.GameWins) / float64(games)
		} else {
			s.GameWinPercentage = winPercentageFloor
		}
	}

	// Second pass: opponent match-win percentage and Buchholz family.
	for _, acc := range byID {
		s := acc.stats
		if len(s.OpponentHistory) == 0 {
			continue
		}
		var mwpSum float64
		oppPoints := make([]int, 0, len(s.OpponentHistory))
		for _, oppID := range s.OpponentHistory {
			opp := byID[oppID]
			mwpSum += opp.flooredMWP
			oppPoints = append(oppPoints, opp.stats.MatchPoints)
		}
		n := float64(len(s.OpponentHistory))
		s.OpponentMatchWinPercentage = mwpSum / n

		total := 0
		lowest, highest := oppPoints[0], oppPoints[0]
		for _, p := range oppPoints {
			total += p
			if p < lowest {
				lowest = p
			}
			if p > highest {
				highest = p
			}
		}
		s.BuchholzScore = total
		s.StrengthOfSchedule = float64(total) / n
		if len(oppPoints) >= 3 {
			s.ModifiedBuchholzScore = total - lowest - highest
		} else {
			s.ModifiedBuchholzScore = total
		}
	}

	// Third pass: opponents' opponent match-win percentage.
	for _, acc := range byID {
		s := acc.stats
		if len(s.OpponentHistory) == 0 {
			continue
		}
		var sum float64
		for _, oppID := range s.OpponentHistory {
			sum += byID[oppID].stats.OpponentMatchWinPercentage
		}
		s.OpponentOpponentMatchWinPercentage = sum / float64(len(s.OpponentHistory))
	}

	ranked := make([]*accumulator, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, byID[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})

	now := time.Now().UTC()
	out := make([]*models.PlayerStats, len(ranked))
	for i, acc := range ranked {
		acc.stats.CurrentStanding = i + 1
		acc.stats.UpdatedAt = now
		out[i] = acc.stats
	}
	return out, nil
}

// less orders the tie-break ladder: active before dropped, then match
// points, opponent MW%, opponent-opponent MW%, game win %, Buchholz, and
// finally the registration tiebreak seed so the order is total.
func less(a, b *accumulator) bool {
	if a.dropped != b.dropped {
		return !a.dropped
	}
	as, bs := a.stats, b.stats
	if as.MatchPoints != bs.MatchPoints {
		return as.MatchPoints > bs.MatchPoints
	}
	if as.OpponentMatchWinPercentage != bs.OpponentMatchWinPercentage {
		return as.OpponentMatchWinPercentage > bs.OpponentMatchWinPercentage
	}
	if as.OpponentOpponentMatchWinPercentage != bs.OpponentOpponentMatchWinPercentage {
		return as.OpponentOpponentMatchWinPercentage > bs.OpponentOpponentMatchWinPercentage
	}
	if as.GameWinPercentage != bs.GameWinPercentage {
		return as.GameWinPercentage > bs.GameWinPercentage
	}
	if as.BuchholzScore != bs.BuchholzScore {
		return as.BuchholzScore > bs.BuchholzScore
	}
	return a.seed < b.seed
}
