/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
)

type awardStep int

const (
	awardIdle awardStep = iota
	awardChallengeSelected
	awardTeamSelected
)

func (s awardStep) String() string {
	switch s {
	case awardChallengeSelected:
		return "challenge_selected"
	case awardTeamSelected:
		return "team_selected"
	default:
		return "idle"
	}
}

// AwardDialog walks an admin through crediting a team:
// pick a challenge, pick a team, enter points. Any step can be cancelled.
type AwardDialog struct {
	step        awardStep
	challengeID int64
	teamID      int64
}

func (d AwardDialog) Step() awardStep {
	return d.step
}

// SelectChallenge opens the dialog for a challenge, discarding any earlier
// selection. There must be at least one team to award.
func (d *AwardDialog) SelectChallenge(sb *Scoreboard, id int64) error {
	if len(sb.Teams()) == 0 {
		return ErrNoTeams
	}
	if _, ok := sb.Challenge(id); !ok {
		return ErrChallengeNotFound
	}

	*d = AwardDialog{
		step:        awardChallengeSelected,
		challengeID: id,
	}

	return nil
}

// SelectTeam picks the winning team. Every team is eligible, including ones
// that already completed the challenge.
func (d *AwardDialog) SelectTeam(sb *Scoreboard, id int64) error {
	if d.step != awardChallengeSelected {
		return ErrAwardState
	}
	if _, ok := sb.Team(id); !ok {
		return ErrTeamNotFound
	}

	d.teamID = id
	d.step = awardTeamSelected

	return nil
}

// Back returns from points entry to team selection.
func (d *AwardDialog) Back() error {
	if d.step != awardTeamSelected {
		return ErrAwardState
	}

	d.teamID = 0
	d.step = awardChallengeSelected

	return nil
}

func (d *AwardDialog) Cancel() {
	*d = AwardDialog{}
}

// Commit awards the points and closes the dialog. Rejected input or a failed
// write leaves the dialog on the points step so the admin can retry. If the
// team or challenge was deleted meanwhile, the dialog closes.
func (d *AwardDialog) Commit(ctx context.Context, sb *Scoreboard, rawPoints string) error {
	if d.step != awardTeamSelected {
		return ErrAwardState
	}

	if err := sb.Award(ctx, d.challengeID, d.teamID, rawPoints); err != nil {
		if errors.Is(err, ErrTeamNotFound) || errors.Is(err, ErrChallengeNotFound) {
			d.Cancel()
		}

		return err
	}

	d.Cancel()

	return nil
}
