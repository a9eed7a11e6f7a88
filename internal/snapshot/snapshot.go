// Package snapshot builds the canonical "session updated" payload.
// The builder is a pure, read-only projection over persisted state:
// it is invoked after every mutating lane command (post-commit) and
// its output is the sole contract the push layer forwards to clients.
// Building the same session twice without an intervening mutation
// yields the same payload.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/facility-checkin/internal/model"
	"github.com/iliyamo/facility-checkin/internal/repository"
)

// Display stages derived for front-ends.  The stage is reconstructed
// from session fields on every build; it is display logic, not
// state-machine-authoritative, so it lives here and is never stored.
const (
	StageLanguage  = "language"
	StageRental    = "rental"
	StageApproval  = "approval"
	StagePayment   = "payment"
	StageAgreement = "agreement"
	StageComplete  = "complete"
)

// CustomerPart is the customer slice of a session snapshot.
type CustomerPart struct {
	ID                  uint64     `json:"id"`
	FullName            string     `json:"full_name"`
	Language            string     `json:"language"`
	Member              bool       `json:"member"`
	MembershipExpiresAt *time.Time `json:"membership_expires_at,omitempty"`
	PastDue             bool       `json:"past_due"`
	PastDueCents        int64      `json:"past_due_cents"`
	Banned              bool       `json:"banned"`
}

// PaymentPart is the billing slice of a session snapshot.
type PaymentPart struct {
	IntentID    uint64          `json:"intent_id"`
	Status      string          `json:"status"`
	AmountCents int64           `json:"amount_cents"`
	Method      string          `json:"method,omitempty"`
	Quote       json.RawMessage `json:"quote,omitempty"`
}

// ResourcePart identifies the resource reserved on the session.
type ResourcePart struct {
	Kind string `json:"kind"`
	ID   uint64 `json:"id"`
}

// Session is the full snapshot payload for one lane.
type Session struct {
	LaneID           uint64        `json:"lane_id"`
	SessionID        uint64        `json:"session_id"`
	Status           string        `json:"status"`
	Stage            string        `json:"stage"`
	Customer         *CustomerPart `json:"customer,omitempty"`
	Payment          *PaymentPart  `json:"payment,omitempty"`
	Resource         *ResourcePart `json:"resource,omitempty"`
	RentalType       string        `json:"rental_type,omitempty"`
	MembershipIntent bool          `json:"membership_intent"`
	PastDueBypass    bool          `json:"past_due_bypass"`
	AgreementSigned  bool          `json:"agreement_signed"`
	CheckoutAt       *time.Time    `json:"checkout_at,omitempty"`
	KioskAckAt       *time.Time    `json:"kiosk_ack_at,omitempty"`
	BuiltAt          time.Time     `json:"built_at"`
}

// Builder joins persisted state into session snapshots.  It only ever
// reads.
type Builder struct {
	Sessions  *repository.LaneSessionRepo
	Customers *repository.CustomerRepo
	Intents   *repository.PaymentIntentRepo
	Visits    *repository.VisitRepo
}

// NewBuilder constructs a Builder; all dependencies must be non-nil.
func NewBuilder(sessions *repository.LaneSessionRepo, customers *repository.CustomerRepo, intents *repository.PaymentIntentRepo, visits *repository.VisitRepo) *Builder {
	if sessions == nil || customers == nil || intents == nil || visits == nil {
		panic("nil repository passed to snapshot.NewBuilder")
	}
	return &Builder{Sessions: sessions, Customers: customers, Intents: intents, Visits: visits}
}

// Build loads a session and assembles its snapshot.  It returns
// repository.ErrNotFound when the session does not exist.
func (b *Builder) Build(ctx context.Context, sessionID uint64) (*Session, error) {
	sess, err := b.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var customer *model.Customer
	if sess.CustomerID != nil {
		customer, err = b.Customers.GetByID(ctx, *sess.CustomerID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	var intent *model.PaymentIntent
	if sess.PaymentIntentID != nil {
		intent, err = b.Intents.GetByID(ctx, *sess.PaymentIntentID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	var block *model.CheckinBlock
	if customer != nil {
		block, err = b.Visits.LatestBlockForCustomer(ctx, customer.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return Assemble(sess, customer, intent, block, time.Now().UTC()), nil
}

// Assemble is the pure core of the builder: given already-loaded
// records it produces the payload.  Split out so the projection can
// be tested without a database.
func Assemble(sess *model.LaneSession, customer *model.Customer, intent *model.PaymentIntent, block *model.CheckinBlock, now time.Time) *Session {
	out := &Session{
		LaneID:           sess.LaneID,
		SessionID:        sess.ID,
		Status:           sess.Status,
		Stage:            DeriveStage(sess, customer, intent),
		MembershipIntent: sess.MembershipIntent,
		PastDueBypass:    sess.PastDueBypass,
		AgreementSigned:  sess.AgreementSignedAt != nil,
		KioskAckAt:       sess.KioskAckAt,
		BuiltAt:          now,
	}
	if sess.ConfirmedRentalType != nil {
		out.RentalType = *sess.ConfirmedRentalType
	} else if sess.ProposedRentalType != nil {
		out.RentalType = *sess.ProposedRentalType
	}
	if customer != nil {
		out.Customer = &CustomerPart{
			ID:                  customer.ID,
			FullName:            customer.FullName,
			Language:            customer.Language,
			Member:              customer.MemberAt(now),
			MembershipExpiresAt: customer.MembershipExpiresAt,
			PastDue:             customer.PastDueCents > 0,
			PastDueCents:        customer.PastDueCents,
			Banned:              customer.BannedAt(now),
		}
	}
	if intent != nil {
		out.Payment = &PaymentPart{
			IntentID:    intent.ID,
			Status:      intent.Status,
			AmountCents: intent.AmountCents,
			Method:      intent.Method,
			Quote:       intent.Quote,
		}
	}
	if sess.ResourceReserved() {
		out.Resource = &ResourcePart{Kind: *sess.ResourceKind, ID: *sess.ResourceID}
	}
	if block != nil {
		end := block.EndsAt
		out.CheckoutAt = &end
	}
	return out
}

// DeriveStage reconstructs the front-end display stage from session
// fields.  The ordering mirrors the desk flow: language, rental
// negotiation, approval, payment, agreement, done.
func DeriveStage(sess *model.LaneSession, customer *model.Customer, intent *model.PaymentIntent) string {
	if sess.AgreementSignedAt != nil {
		return StageComplete
	}
	if customer == nil || customer.Language == "" {
		return StageLanguage
	}
	if !sess.SelectionConfirmed() {
		if sess.ProposedRentalType != nil {
			return StageApproval
		}
		return StageRental
	}
	if intent == nil || intent.Status != model.IntentPaid {
		return StagePayment
	}
	return StageAgreement
}
