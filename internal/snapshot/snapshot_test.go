package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/facility-checkin/internal/model"
)

func strPtr(s string) *string        { return &s }
func u64Ptr(v uint64) *uint64        { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func TestDeriveStage(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("no customer means language", func(t *testing.T) {
		s := &model.LaneSession{Status: model.SessionActive}
		assert.Equal(t, StageLanguage, DeriveStage(s, nil, nil))
	})

	t.Run("customer without language means language", func(t *testing.T) {
		s := &model.LaneSession{Status: model.SessionActive}
		c := &model.Customer{ID: 1}
		assert.Equal(t, StageLanguage, DeriveStage(s, c, nil))
	})

	cust := &model.Customer{ID: 1, Language: "en"}

	t.Run("no proposal means rental", func(t *testing.T) {
		s := &model.LaneSession{Status: model.SessionActive}
		assert.Equal(t, StageRental, DeriveStage(s, cust, nil))
	})

	t.Run("open proposal means approval", func(t *testing.T) {
		s := &model.LaneSession{
			Status:             model.SessionActive,
			ProposedRentalType: strPtr(model.TierDouble),
			ProposedBy:         strPtr(model.ActorCustomer),
		}
		assert.Equal(t, StageApproval, DeriveStage(s, cust, nil))
	})

	confirmed := &model.LaneSession{
		Status:              model.SessionAwaitingPayment,
		ConfirmedRentalType: strPtr(model.TierDouble),
	}

	t.Run("confirmed but unpaid means payment", func(t *testing.T) {
		assert.Equal(t, StagePayment, DeriveStage(confirmed, cust, nil))
		due := &model.PaymentIntent{ID: 9, Status: model.IntentDue}
		assert.Equal(t, StagePayment, DeriveStage(confirmed, cust, due))
	})

	t.Run("paid means agreement", func(t *testing.T) {
		paid := &model.PaymentIntent{ID: 9, Status: model.IntentPaid}
		assert.Equal(t, StageAgreement, DeriveStage(confirmed, cust, paid))
	})

	t.Run("signed means complete", func(t *testing.T) {
		s := &model.LaneSession{
			Status:            model.SessionCompleted,
			AgreementSignedAt: timePtr(now),
		}
		assert.Equal(t, StageComplete, DeriveStage(s, cust, nil))
	})
}

func TestAssemble(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	memberUntil := now.Add(90 * 24 * time.Hour)

	sess := &model.LaneSession{
		ID:                  42,
		LaneID:              3,
		Status:              model.SessionAwaitingSignature,
		CustomerID:          u64Ptr(7),
		ConfirmedRentalType: strPtr(model.TierStandard),
		ResourceKind:        strPtr(model.ResourceKindRoom),
		ResourceID:          u64Ptr(101),
		PaymentIntentID:     u64Ptr(55),
		MembershipIntent:    true,
	}
	cust := &model.Customer{
		ID:                  7,
		FullName:            "Asta Virtanen",
		Language:            "fi",
		MembershipExpiresAt: &memberUntil,
		PastDueCents:        1500,
	}
	intent := &model.PaymentIntent{ID: 55, Status: model.IntentPaid, AmountCents: 3200, Method: "CARD"}
	block := &model.CheckinBlock{ID: 9, EndsAt: now.Add(12 * time.Hour)}

	out := Assemble(sess, cust, intent, block, now)
	require.NotNil(t, out)

	assert.Equal(t, uint64(3), out.LaneID)
	assert.Equal(t, uint64(42), out.SessionID)
	assert.Equal(t, model.SessionAwaitingSignature, out.Status)
	assert.Equal(t, StageAgreement, out.Stage)
	assert.Equal(t, model.TierStandard, out.RentalType)
	assert.True(t, out.MembershipIntent)
	assert.False(t, out.AgreementSigned)

	require.NotNil(t, out.Customer)
	assert.Equal(t, "Asta Virtanen", out.Customer.FullName)
	assert.True(t, out.Customer.Member)
	assert.True(t, out.Customer.PastDue)
	assert.Equal(t, int64(1500), out.Customer.PastDueCents)
	assert.False(t, out.Customer.Banned)

	require.NotNil(t, out.Payment)
	assert.Equal(t, uint64(55), out.Payment.IntentID)
	assert.Equal(t, model.IntentPaid, out.Payment.Status)

	require.NotNil(t, out.Resource)
	assert.Equal(t, model.ResourceKindRoom, out.Resource.Kind)
	assert.Equal(t, uint64(101), out.Resource.ID)

	require.NotNil(t, out.CheckoutAt)
	assert.Equal(t, block.EndsAt, *out.CheckoutAt)
}

// Assembling the same loaded state twice yields the same payload.
func TestAssembleIdempotent(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	sess := &model.LaneSession{ID: 1, LaneID: 1, Status: model.SessionActive}

	a := Assemble(sess, nil, nil, nil, now)
	b := Assemble(sess, nil, nil, nil, now)
	assert.Equal(t, a, b)
}
