package asset

import "errors"

// Every operation rejects with one of these sentinels, usually wrapped
// with the offending and expected values. A rejected operation mutates
// nothing.
var (
	// Authorization errors
	ErrNotKeeper         = errors.New("asset: caller is not the keeper")
	ErrNotCreator        = errors.New("asset: caller is not the creator")
	ErrBeneficiaryBarred = errors.New("asset: beneficiary may not take this role")
	ErrSelfPurchase      = errors.New("asset: keeper cannot purchase from themselves")
	ErrFundsLockedInBid  = errors.New("asset: funds are locked while leading the auction")

	// State-precondition errors
	ErrNotContractHeld     = errors.New("asset: asset is not in contract custody")
	ErrNotKeeperHeld       = errors.New("asset: asset has no keeper")
	ErrAuctionRunning      = errors.New("asset: auction is running")
	ErrAuctionNotRunning   = errors.New("asset: no auction is running")
	ErrAuctionNotEnded     = errors.New("asset: auction has not ended yet")
	ErrCreatorControlsOnly = errors.New("asset: parameter changes require creator control")
	ErrOathNotHonored      = errors.New("asset: creator oath is not honored")
	ErrSettledThisInstant  = errors.New("asset: settlement already happened this second")

	// Solvency errors
	ErrKeeperInsolvent = errors.New("asset: keeper is insolvent")
	ErrKeeperSolvent   = errors.New("asset: keeper is solvent")

	// Value errors
	ErrBidTooLow             = errors.New("asset: bid below minimum")
	ErrPriceTooHigh          = errors.New("asset: price exceeds maximum")
	ErrCleartextTooLong      = errors.New("asset: cleartext exceeds maximum length")
	ErrCurrentValueIncorrect = errors.New("asset: restated current value is incorrect")
	ErrInvalidParameter      = errors.New("asset: invalid parameter")

	// Domain-invariant errors
	ErrInvocationNotFound   = errors.New("asset: invocation not found")
	ErrResponseNotFound     = errors.New("asset: response not found")
	ErrResponseExists       = errors.New("asset: response already exists")
	ErrCooldownActive       = errors.New("asset: invocation cooldown has not expired")
	ErrFlaggingPeriodOver   = errors.New("asset: flagging period has expired")
	ErrResponseNotToKeeper  = errors.New("asset: response predates the current keepership")
	ErrResponseAlreadyFlagged = errors.New("asset: response already flagged")
)
