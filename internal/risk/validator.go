// Package risk applies the pre-execution policy gate to cycle candidates.
// Checks run in a fixed order and short-circuit on the first failure; the
// verdict is always a structured value, never a panic or an untyped error.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
)

const bpsDenominator = 10_000

// VenueDirectory resolves venue records; the venue registry satisfies it.
type VenueDirectory interface {
	Venue(id string) (domain.Venue, error)
}

// Verdict is the validator's decision for one candidate.
type Verdict struct {
	Accepted bool
	Code     string // machine-readable check name on rejection
	Detail   string
}

// Rejection converts a failed verdict into the domain's structured error.
func (v Verdict) Rejection() *domain.PolicyRejection {
	if v.Accepted {
		return nil
	}
	return &domain.PolicyRejection{Code: v.Code, Detail: v.Detail}
}

// Validator applies the configured policy to candidates.
type Validator struct {
	cfg       config.RiskConfig
	venues    VenueDirectory
	meta      domain.TokenMetaCache
	minProfit *big.Int
	whitelist map[common.Address]bool
	logger    *slog.Logger
}

// New creates a Validator. minProfit is the engine's profit threshold, which
// check (e) re-applies after shaving the safety margin. whitelist lists token
// addresses that bypass age and audit checks.
func New(cfg config.RiskConfig, venues VenueDirectory, meta domain.TokenMetaCache, minProfit *big.Int, whitelist []string, logger *slog.Logger) *Validator {
	wl := make(map[common.Address]bool, len(whitelist))
	for _, a := range whitelist {
		wl[common.HexToAddress(strings.TrimSpace(a))] = true
	}
	return &Validator{
		cfg:       cfg,
		venues:    venues,
		meta:      meta,
		minProfit: minProfit,
		whitelist: wl,
		logger:    logger.With(slog.String("component", "risk_validator")),
	}
}

// Validate runs the policy checks against a candidate, in order:
// venue TVL floor, token age and audit score (whitelist bypass), blacklists,
// exposure cap, then profit threshold with the safety margin applied. The
// returned error reports infrastructure failures (metadata unavailable), not
// policy outcomes.
func (v *Validator) Validate(ctx context.Context, cand domain.CycleCandidate) (Verdict, error) {
	now := time.Now().UTC()

	// (a) Venue TVL floor.
	for _, id := range cand.Venues() {
		ven, err := v.venues.Venue(id)
		if err != nil {
			return v.reject("unknown_venue", fmt.Sprintf("venue %s not registered", id)), nil
		}
		if ven.TVLUSD < v.cfg.TVLFloorUSD {
			return v.reject("tvl_floor", fmt.Sprintf("venue %s TVL %.0f below floor %.0f",
				id, ven.TVLUSD, v.cfg.TVLFloorUSD)), nil
		}
	}

	// (b) Token age and audit score, unless whitelisted. (c) Blacklist.
	for _, addr := range cand.Tokens() {
		meta, err := v.meta.Get(ctx, addr.Hex())
		if errors.Is(err, domain.ErrNotFound) {
			// No discovery record means age and audit cannot be verified.
			return v.reject("unknown_token", "no metadata for token "+addr.Hex()), nil
		}
		if err != nil {
			return Verdict{}, fmt.Errorf("risk: token metadata %s: %w", addr.Hex(), err)
		}
		if !v.whitelist[addr] && !meta.Whitelisted {
			if meta.Age(now) < v.cfg.MinTokenAge.Duration {
				return v.reject("token_age", fmt.Sprintf("token %s age %s below minimum %s",
					addr.Hex(), meta.Age(now).Truncate(time.Second), v.cfg.MinTokenAge.Duration)), nil
			}
			if meta.AuditScore < v.cfg.RequiredAuditScore {
				return v.reject("audit_score", fmt.Sprintf("token %s score %d below required %d",
					addr.Hex(), meta.AuditScore, v.cfg.RequiredAuditScore)), nil
			}
		}
		if meta.Blacklisted {
			return v.reject("blacklist", "token "+addr.Hex()+" is blacklisted"), nil
		}
	}
	for _, id := range cand.Venues() {
		ven, _ := v.venues.Venue(id)
		if ven.Blacklisted {
			return v.reject("blacklist", "venue "+id+" is blacklisted"), nil
		}
	}

	// (d) Exposure cap: the borrowed amount is the full exposure of the
	// atomic trade, regardless of how profitable it looks.
	if cand.AmountIn.Cmp(v.cfg.ExposureCap()) > 0 {
		return v.reject("exposure_cap", fmt.Sprintf("required exposure %s exceeds cap %s",
			cand.AmountIn, v.cfg.ExposureCapWei)), nil
	}

	// (e) Profit threshold after the safety margin, absorbing price movement
	// between detection and execution.
	margined := new(big.Int).Mul(cand.NetProfit, big.NewInt(bpsDenominator-v.cfg.SafetyMarginBps))
	margined.Div(margined, big.NewInt(bpsDenominator))
	if margined.Cmp(v.minProfit) < 0 {
		return v.reject("profit_margin", fmt.Sprintf("margined profit %s below threshold %s",
			margined, v.minProfit)), nil
	}

	return Verdict{Accepted: true}, nil
}

func (v *Validator) reject(code, detail string) Verdict {
	v.logger.Debug("candidate rejected",
		slog.String("code", code),
		slog.String("detail", detail),
	)
	return Verdict{Accepted: false, Code: code, Detail: detail}
}
