// Package pairing produces round pairings for swiss and single
// elimination phases. Like the standings calculator it is pure: callers
// pass the current ordering in, persistence happens a layer up.
package pairing

import (
	"errors"
	"fmt"
)

var (
	ErrNoPlayers     = errors.New("cannot pair a round with zero active players")
	ErrSinglePlayer  = errors.New("only one active player remains, phase should complete instead")
	ErrCutTooLarge   = errors.New("cut size exceeds the number of active players")
	ErrCutTooSmall   = errors.New("cut size must be at least 2")
	ErrOddWinnerList = errors.New("elimination round requires an even number of winners")
)

// Player is one active (non-dropped) participant, listed in current
// standing order, best first.
type Player struct {
	ParticipantID  int
	HasReceivedBye bool
	Opponents      []int
}

// Pairing is one table of the next round. P2 == nil marks the bye.
// ForcedRematch records that no rematch-free opponent existed when the
// pair was formed, so the rematch constraint was deliberately relaxed.
type Pairing struct {
	Table         int
	P1            int
	P2            *int
	IsBye         bool
	ForcedRematch bool
}

func (p Player) hasPlayed(opponentID int) bool {
	for _, id := range p.Opponents {
		if id == opponentID {
			return true
		}
	}
	return false
}

// Swiss pairs players greedily down the standings: the best unpaired
// player meets the nearest-ranked unpaired player they have not faced.
// When no rematch-free opponent remains for someone, the nearest opponent
// is taken anyway; one forced rematch beats leaving two players unpaired.
//
// With an odd player count the bye goes to the lowest-ranked player who
// has not had one yet, or the lowest-ranked overall once everyone has.
// Table numbers are sequential in pairing order and carry no meaning
// beyond display.
func Swiss(players []Player) ([]Pairing, error) {
	switch len(players) {
	case 0:
		return nil, ErrNoPlayers
	case 1:
		return nil, ErrSinglePlayer
	}

	pool := make([]Player, len(players))
	copy(pool, players)

	pairings := make([]Pairing, 0, len(pool)/2+1)

	var byePlayer *Player
	if len(pool)%2 == 1 {
		idx := byeIndex(pool)
		p := pool[idx]
		byePlayer = &p
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	for len(pool) > 0 {
		a := pool[0]
		pool = pool[1:]

		opponentIdx := -1
		for i := range pool {
			if !a.hasPlayed(pool[i].ParticipantID) {
				opponentIdx = i
				break
			}
		}
		forced := false
		if opponentIdx == -1 {
			// Every remaining candidate is a rematch; take the nearest.
			opponentIdx = 0
			forced = true
		}
		b := pool[opponentIdx]
		pool = append(pool[:opponentIdx], pool[opponentIdx+1:]...)

		oppID := b.ParticipantID
		pairings = append(pairings, Pairing{
			Table:         len(pairings) + 1,
			P1:            a.ParticipantID,
			P2:            &oppID,
			ForcedRematch: forced,
		})
	}

	if byePlayer != nil {
		pairings = append(pairings, Pairing{
			Table: len(pairings) + 1,
			P1:    byePlayer.ParticipantID,
			IsBye: true,
		})
	}
	return pairings, nil
}

// byeIndex picks the bye recipient: lowest-ranked without a prior bye,
// falling back to the lowest-ranked player when everyone has had one.
func byeIndex(players []Player) int {
	for i := len(players) - 1; i >= 0; i-- {
		if !players[i].HasReceivedBye {
			return i
		}
	}
	return len(players) - 1
}

// EliminationSeeding builds round one of a top cut. Seeds come in final
// swiss standing order, seeds[0] being seed 1. The bracket is folded so
// seed 1 meets the lowest surviving seed; for a cut that is not a power
// of two the missing low-seed slots become byes for the top seeds.
//
// For a top 6 that yields byes for seeds 1 and 2 and the matches 3v6 and
// 4v5 in a size-8 bracket.
func EliminationSeeding(seeds []int) ([]Pairing, error) {
	n := len(seeds)
	if n < 2 {
		return nil, ErrCutTooSmall
	}

	bracketSize := 1
	for bracketSize < n {
		bracketSize <<= 1
	}

	pairings := make([]Pairing, 0, bracketSize/2)
	for i := 0; i < bracketSize/2; i++ {
		high := i                  // seed i+1
		low := bracketSize - 1 - i // seed bracketSize-i
		p := Pairing{
			Table: i + 1,
			P1:    seeds[high],
		}
		if low < n {
			oppID := seeds[low]
			p.P2 = &oppID
		} else {
			p.IsBye = true
		}
		pairings = append(pairings, p)
	}
	return pairings, nil
}

// EliminationNextRound pairs winners by bracket adjacency: the winner of
// table 1 meets the winner of table 2, and so on. Winners must be passed
// in the table order of the previous round. Standings play no part here.
func EliminationNextRound(winners []int) ([]Pairing, error) {
	if len(winners) == 0 {
		return nil, ErrNoPlayers
	}
	if len(winners)%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrOddWinnerList, len(winners))
	}
	pairings := make([]Pairing, 0, len(winners)/2)
	for i := 0; i < len(winners); i += 2 {
		oppID := winners[i+1]
		pairings = append(pairings, Pairing{
			Table: i/2 + 1,
			P1:    winners[i],
			P2:    &oppID,
		})
	}
	return pairings, nil
}
