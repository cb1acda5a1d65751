package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"shelter_app_echo/internal/config"
)

// ErrPaymentUnverifiable means no trusted credential could fetch the payment
var ErrPaymentUnverifiable = errors.New("payments: payment not fetchable with any known credential")

// CredentialSource tells which step of the cascade produced a credential
type CredentialSource string

const (
	CredentialSourceHinted   CredentialSource = "hinted"
	CredentialSourcePlatform CredentialSource = "platform"
	CredentialSourceShelter  CredentialSource = "shelter"
)

// CandidateCredential is one access token the cascade will try
type CandidateCredential struct {
	Source      CredentialSource
	ShelterID   string // empty for the platform credential
	AccessToken string
}

// OwnedByShelter reports whether the token belongs to a shelter account
func (c CandidateCredential) OwnedByShelter() bool {
	return c.Source != CredentialSourcePlatform
}

// PlatformCredential is the optional platform-wide Mercado Pago account,
// loaded once at startup and never mutated
type PlatformCredential struct {
	AccessToken string
	PublicKey   string
}

// NewPlatformCredential returns nil when no platform token is configured
func NewPlatformCredential(cfg config.MercadoPagoConfig) *PlatformCredential {
	if cfg.AccessToken == "" {
		return nil
	}
	return &PlatformCredential{AccessToken: cfg.AccessToken, PublicKey: cfg.PublicKey}
}

// credentialAttempt is one step of the cascade. each yields candidates
// lazily and stops as soon as yield returns false.
type credentialAttempt interface {
	name() string
	each(ctx context.Context, yield func(CandidateCredential) bool) error
}

type hintedAttempt struct {
	tokens    *TokenManager
	shelterID string
}

func (a hintedAttempt) name() string { return string(CredentialSourceHinted) }

func (a hintedAttempt) each(ctx context.Context, yield func(CandidateCredential) bool) error {
	cred, err := a.tokens.ResolveValidCredential(ctx, a.shelterID)
	if err != nil || cred == nil {
		return err
	}
	yield(CandidateCredential{Source: CredentialSourceHinted, ShelterID: cred.ShelterID, AccessToken: cred.AccessToken})
	return nil
}

type platformAttempt struct {
	cred *PlatformCredential
}

func (a platformAttempt) name() string { return string(CredentialSourcePlatform) }

func (a platformAttempt) each(_ context.Context, yield func(CandidateCredential) bool) error {
	if a.cred == nil {
		return nil
	}
	yield(CandidateCredential{Source: CredentialSourcePlatform, AccessToken: a.cred.AccessToken})
	return nil
}

type bruteForceAttempt struct {
	store  *CredentialStore
	tokens *TokenManager
	skip   string
}

func (a bruteForceAttempt) name() string { return string(CredentialSourceShelter) }

func (a bruteForceAttempt) each(ctx context.Context, yield func(CandidateCredential) bool) error {
	creds, err := a.store.ListMercadoPago(ctx)
	if err != nil {
		return err
	}
	for i := range creds {
		if creds[i].ShelterID == a.skip {
			continue
		}
		// refresh one tenant at a time, only if we get this far
		cred := a.tokens.ensureFresh(ctx, &creds[i])
		if !yield(CandidateCredential{Source: CredentialSourceShelter, ShelterID: cred.ShelterID, AccessToken: cred.AccessToken}) {
			return nil
		}
	}
	return nil
}

// CredentialCascade finds a credential able to fetch a Mercado Pago payment:
// the hinted shelter first, then the platform account, then every connected
// shelter in turn. It tries at most one credential per shelter plus the
// platform one.
type CredentialCascade struct {
	store    *CredentialStore
	tokens   *TokenManager
	platform *PlatformCredential
	mp       MercadoPagoAPI
	logger   *zap.Logger
}

func NewCredentialCascade(store *CredentialStore, tokens *TokenManager, platform *PlatformCredential, mp MercadoPagoAPI, logger *zap.Logger) *CredentialCascade {
	return &CredentialCascade{store: store, tokens: tokens, platform: platform, mp: mp, logger: logger}
}

func (c *CredentialCascade) attempts(hint string) []credentialAttempt {
	var attempts []credentialAttempt
	if hint != "" {
		attempts = append(attempts, hintedAttempt{tokens: c.tokens, shelterID: hint})
	}
	attempts = append(attempts,
		platformAttempt{cred: c.platform},
		bruteForceAttempt{store: c.store, tokens: c.tokens, skip: hint},
	)
	return attempts
}

// FetchPayment fetches the payment with the first credential that succeeds.
// It returns ErrPaymentUnverifiable when every candidate fails.
func (c *CredentialCascade) FetchPayment(ctx context.Context, paymentID, hint string) (*MercadoPagoPayment, *CandidateCredential, error) {
	var (
		payment *MercadoPagoPayment
		winner  *CandidateCredential
		tried   int
	)

	for _, attempt := range c.attempts(hint) {
		err := attempt.each(ctx, func(cand CandidateCredential) bool {
			tried++
			p, err := c.mp.GetPayment(ctx, cand.AccessToken, paymentID)
			if err != nil {
				c.logger.Debug("payment fetch failed with candidate credential",
					zap.String("payment_id", paymentID),
					zap.String("source", string(cand.Source)),
					zap.String("shelter_id", cand.ShelterID),
					zap.Error(err))
				return true
			}
			payment = p
			winner = &cand
			return false
		})
		if err != nil {
			c.logger.Warn("credential attempt failed",
				zap.String("attempt", attempt.name()),
				zap.String("payment_id", paymentID),
				zap.Error(err))
		}
		if winner != nil {
			return payment, winner, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}

	c.logger.Info("payment could not be verified with any credential",
		zap.String("payment_id", paymentID),
		zap.Int("credentials_tried", tried))
	return nil, nil, ErrPaymentUnverifiable
}
