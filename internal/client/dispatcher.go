package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/morghi/internal/model"
)

// DefaultAckTimeout bounds the wait for the authority to acknowledge an action.
const DefaultAckTimeout = 5 * time.Second

// Dispatcher submits the local player's actions. It never touches the
// projection: the resulting state arrives as notices like everyone else's.
type Dispatcher struct {
	auth    Authority
	proj    *Projection
	timeout time.Duration
}

func NewDispatcher(auth Authority, proj *Projection, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	return &Dispatcher{auth: auth, proj: proj, timeout: timeout}
}

// Submit pre-checks a and sends it once. When the acknowledgment does not
// arrive in time it returns model.ErrTimeout: the outcome is unknown and
// the next state notice tells. It never re-submits.
func (d *Dispatcher) Submit(ctx context.Context, a model.GameAction) (model.GameActionResponse, error) {
	if a.Actor.ID == "" {
		a.Actor.ID = d.proj.Player()
	}
	if err := d.precheck(a); err != nil {
		return model.GameActionResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.auth.Execute(ctx, a)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.GameActionResponse{}, fmt.Errorf("%w: no acknowledgment for %s within %s", model.ErrTimeout, a.Type, d.timeout)
		}
		return model.GameActionResponse{}, err
	}
	return resp, nil
}

func (d *Dispatcher) precheck(a model.GameAction) error {
	if err := model.CheckShape(a); err != nil {
		return err
	}
	if a.Actor.ID != d.proj.Player() {
		return model.Illegal("cannot act as %s", a.Actor.ID)
	}
	if hand, ok := d.proj.Hand(); ok && !hand.Contains(a.Cards) {
		return model.Illegal("cards %v are not in your hand", a.Cards)
	}
	return nil
}

func (d *Dispatcher) action(t model.ActionType, cards []model.Card, params *model.ActionParams) model.GameAction {
	return model.GameAction{
		Type:   t,
		Actor:  model.Player{ID: d.proj.Player()},
		Cards:  cards,
		Params: params,
	}
}

func (d *Dispatcher) targeting(id string) *model.ActionParams {
	return &model.ActionParams{Target: &model.Player{ID: id}}
}

// pick takes the wanted cards from the local hand.
func (d *Dispatcher) pick(want ...model.Card) ([]model.Card, error) {
	hand, ok := d.proj.Hand()
	if !ok {
		return nil, model.Illegal("hand not known yet")
	}
	if !hand.Contains(want) {
		return nil, model.Illegal("need %v in hand", want)
	}
	return want, nil
}

// Skip ends the turn, discarding the given cards.
func (d *Dispatcher) Skip(ctx context.Context, discard ...model.Card) (model.GameActionResponse, error) {
	return d.Submit(ctx, d.action(model.SkipTurn, discard, nil))
}

func (d *Dispatcher) LayEgg(ctx context.Context) (model.GameActionResponse, error) {
	cards, err := d.pick(model.Hen, model.Rooster, model.Nest)
	if err != nil {
		return model.GameActionResponse{}, err
	}
	return d.Submit(ctx, d.action(model.LayEgg, cards, nil))
}

func (d *Dispatcher) HatchEgg(ctx context.Context) (model.GameActionResponse, error) {
	cards, err := d.pick(model.Hen, model.Hen)
	if err != nil {
		return model.GameActionResponse{}, err
	}
	return d.Submit(ctx, d.action(model.HatchEgg, cards, nil))
}

func (d *Dispatcher) FoxSteal(ctx context.Context, target string) (model.GameActionResponse, error) {
	cards, err := d.pick(model.Fox)
	if err != nil {
		return model.GameActionResponse{}, err
	}
	return d.Submit(ctx, d.action(model.FoxSteal, cards, d.targeting(target)))
}

func (d *Dispatcher) SnakeEat(ctx context.Context, target string, eggs int) (model.GameActionResponse, error) {
	cards, err := d.pick(model.Snake)
	if err != nil {
		return model.GameActionResponse{}, err
	}
	params := d.targeting(target)
	params.EggCount = eggs
	return d.Submit(ctx, d.action(model.SnakeEat, cards, params))
}

// TrapInit returns the target's hand in resp.Params.TargetHand.
func (d *Dispatcher) TrapInit(ctx context.Context, target string) (model.GameActionResponse, error) {
	cards, err := d.pick(model.Trap)
	if err != nil {
		return model.GameActionResponse{}, err
	}
	return d.Submit(ctx, d.action(model.TrapKill, cards, d.targeting(target)))
}

func (d *Dispatcher) TrapFinish(ctx context.Context, target string, card model.Card) (model.GameActionResponse, error) {
	params := d.targeting(target)
	params.Finish = true
	params.Card = &card
	return d.Submit(ctx, d.action(model.TrapKill, nil, params))
}

// Defend answers a pending fox with two roosters when the hand has them,
// and concedes otherwise.
func (d *Dispatcher) Defend(ctx context.Context) (model.GameActionResponse, error) {
	cards, err := d.pick(model.Rooster, model.Rooster)
	if err != nil {
		cards = nil
	}
	return d.Submit(ctx, d.action(model.DefendFoxSteal, cards, nil))
}
