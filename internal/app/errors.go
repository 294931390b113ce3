package app

import "errors"

// Rule violations. Every rejected move wraps one of these; the wrapped
// message is the reason shown to the player.
var (
	ErrNotPlaying           = errors.New("game is not in the playing state")
	ErrNotExchanging        = errors.New("game is not in the card exchange state")
	ErrUnknownPlayer        = errors.New("player not found")
	ErrPlayerFinished       = errors.New("player already finished this round")
	ErrNotYourTurn          = errors.New("not your turn")
	ErrNoCards              = errors.New("no cards selected")
	ErrCardNotInHand        = errors.New("card not in hand")
	ErrDuplicateCard        = errors.New("card submitted more than once")
	ErrRankMismatch         = errors.New("cards must share a rank")
	ErrCountMismatch        = errors.New("wrong number of cards")
	ErrTooWeak              = errors.New("play does not beat the field")
	ErrShibari              = errors.New("suit is locked")
	ErrSuitLock             = errors.New("cards must follow the field's suit")
	ErrMustLead             = errors.New("cannot pass while leading")
	ErrNoExchangeDue        = errors.New("no card exchange due from player")
	ErrExchangeCount        = errors.New("wrong number of exchange cards")
	ErrExchangeNotStrongest = errors.New("exchange must give the strongest cards")
	ErrNotCPU               = errors.New("current player is not computer controlled")
)

// Setup errors.
var (
	ErrTooFewPlayers   = errors.New("not enough players to start")
	ErrTooManyPlayers  = errors.New("too many players")
	ErrInvalidPlayerID = errors.New("player id is required")
	ErrDuplicatePlayer = errors.New("player seated twice")
	ErrGameNotFound    = errors.New("game not found")
)

// ErrInvariant marks an internal state breach. It is never a rejected move
// and is always logged at error level.
var ErrInvariant = errors.New("engine invariant violated")
