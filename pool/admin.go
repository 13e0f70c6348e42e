package pool

import (
	"context"
	"errors"
	"fmt"

	"hyc/hyc-node/fieldhash"
	"hyc/hyc-node/logging"
	merkle_tree "hyc/hyc-node/merkle-tree"
)

func (p *Pool) onlyOwner(caller string) error {
	if caller != p.settings.Owner {
		return ErrNotOwner
	}
	return nil
}

// saveSettings persists next and swaps it in only if the write succeeded.
func (p *Pool) saveSettings(ctx context.Context, next Settings) error {
	if err := p.deps.Meta.Save(ctx, &next); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	p.settings = next
	return nil
}

// AddToWhitelist admits account after a risk check. A denied account is re-allowed in place.
func (p *Pool) AddToWhitelist(ctx context.Context, caller, account string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	if p.settings.KillSwitch {
		return ErrKillSwitchActive
	}
	h, err := fieldhash.AccountHash(account)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	risk, err := p.deps.Authorizer.RiskLevel(ctx, account)
	if err != nil {
		return fmt.Errorf("risk lookup for %s: %w", account, err)
	}
	if risk > p.settings.MaxRisk {
		return fmt.Errorf("%w: %s scored %d, max %d", ErrRiskTooHigh, account, risk, p.settings.MaxRisk)
	}

	inserted, err := p.deps.Whitelist.Add(ctx, h)
	if err != nil {
		return err
	}
	e := Event{Type: EventWhitelistRestored, Account: account, Time: now()}
	if inserted {
		e.Type = EventWhitelistAdded
		e.Root = fieldhash.ToHex(p.deps.Whitelist.CurrentRoot())
	}
	p.emit(ctx, e)
	logging.Logger().Info().Str("account", account).Bool("new_leaf", inserted).Msg("Account whitelisted")
	return nil
}

// Deny masks a whitelisted account. Roots containing it stay valid.
func (p *Pool) Deny(ctx context.Context, caller, account string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	h, err := fieldhash.AccountHash(account)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if err := p.deps.Whitelist.Deny(ctx, h); err != nil {
		return err
	}
	p.emit(ctx, Event{Type: EventWhitelistDenied, Account: account, Time: now()})
	logging.Logger().Info().Str("account", account).Msg("Account denied")
	return nil
}

func (p *Pool) TransferOwnership(ctx context.Context, caller, newOwner string) error {
	if newOwner == "" {
		return errors.New("new owner is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	next := p.settings.clone()
	next.Owner = newOwner
	if err := p.saveSettings(ctx, next); err != nil {
		return err
	}
	p.emit(ctx, Event{Type: EventOwnerChanged, Account: newOwner, Time: now()})
	logging.Logger().Info().Str("previous", caller).Str("owner", newOwner).Msg("Ownership transferred")
	return nil
}

// SetKillSwitch stops deposits and whitelist additions. Withdrawals are never blocked.
func (p *Pool) SetKillSwitch(ctx context.Context, caller string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.onlyOwner(caller); err != nil {
		return err
	}
	next := p.settings.clone()
	next.KillSwitch = enabled
	if err := p.saveSettings(ctx, next); err != nil {
		return err
	}
	p.emit(ctx, Event{Type: EventKillSwitch, Enabled: &enabled, Time: now()})
	logging.Logger().Warn().Bool("enabled", enabled).Msg("Kill switch toggled")
	return nil
}

// IsWhitelistError reports whether err is a whitelist membership rejection.
func IsWhitelistError(err error) bool {
	return errors.Is(err, merkle_tree.ErrAlreadyWhitelisted) || errors.Is(err, merkle_tree.ErrNotWhitelisted)
}
