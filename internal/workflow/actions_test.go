package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"secmaster/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActions(f *fixture) *Actions {
	return NewActions(f.db, f.dispatch, f.securities, f.auctions)
}

func TestActions_CreateSecurityThroughJSON(t *testing.T) {
	f := newFixture(t)
	actions := newActions(f)
	ctx := context.Background()

	payload := []byte(`{"security_name":"FGN NOV 2040","isin":"NGFGN0000040","coupon":10.5,"coupon_type":"Fixed","issue_date":"2020-11-01","maturity_date":"2040-11-01"}`)
	action, err := actions.Propose(ctx, models.ModelTypeSecurity, models.RequestCreate, nil, payload, inputterID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingStatusPending, action.Status)

	var staged models.SecurityFields
	require.NoError(t, json.Unmarshal(action.Data, &staged))
	assert.Equal(t, 20, *staged.Tenor, "derived fields are added to the stored payload")

	approved, outcome, err := actions.Approve(ctx, action.ID, authoriserID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, models.PendingStatusApproved, approved.Status)
	assert.Nil(t, approved.ModelID, "create actions keep a null target")

	var sec models.Security
	require.NoError(t, f.db.Where("isin = ?", "NGFGN0000040").First(&sec).Error)
	assert.Equal(t, inputterID, *sec.CreatedBy)

	var stored models.PendingAction
	require.NoError(t, f.db.First(&stored, action.ID).Error)
	assert.Nil(t, stored.ModelID)

	_, _, err = actions.Approve(ctx, action.ID, authoriserID)
	assert.True(t, models.HasCode(err, models.CodeNotPending))
}

func TestActions_RejectsUntypedPayloads(t *testing.T) {
	f := newFixture(t)
	actions := newActions(f)
	ctx := context.Background()

	_, err := actions.Propose(ctx, models.ModelTypeSecurity, models.RequestCreate, nil, []byte(`{"isin":"NGFGN0000041","approval_status":"active"}`), inputterID)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = actions.Propose(ctx, "bond_future", models.RequestCreate, nil, []byte(`{}`), inputterID)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = actions.Propose(ctx, models.ModelTypeSecurity, models.RequestUpdate, nil, []byte(`{}`), inputterID)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = actions.Propose(ctx, models.ModelTypeSecurity, models.RequestCreate, nil, nil, inputterID)
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestActions_UpdateSharesTheApprovalLock(t *testing.T) {
	f := newFixture(t)
	actions := newActions(f)
	ctx := context.Background()
	sec := f.liveSecurity(t, "NGFGN0000042", "FGN DEC 2041")

	action, err := actions.Propose(ctx, models.ModelTypeSecurity, models.RequestUpdate, &sec.ID, []byte(`{"coupon":7.25}`), inputterID)
	require.NoError(t, err)

	_, err = f.securities.ProposeUpdate(ctx, sec.ID, models.SecurityFields{Coupon: models.Ptr(8.0)}, inputterID, authoriserID)
	assert.True(t, models.HasCode(err, models.CodePendingApproval))

	rejected, err := actions.Reject(ctx, action.ID, authoriserID, "wrong coupon")
	require.NoError(t, err)
	assert.Equal(t, "wrong coupon", *rejected.RejectionReason)

	current, err := f.securities.Get(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntityStatusActive, current.ApprovalStatus)
	assert.Equal(t, 12.5, *current.Coupon)
}

func TestActions_DeleteAuctionResult(t *testing.T) {
	f := newFixture(t)
	actions := newActions(f)
	ctx := context.Background()

	auction, err := f.auctions.CreateDirect(ctx, models.AuctionResultFields{
		AuctionNumber: models.Ptr("A-2025-07"),
		AuctionDate:   models.DatePtr(fixedNow),
		AmountOffered: models.Ptr(50.0),
	}, adminID)
	require.NoError(t, err)

	action, err := actions.Propose(ctx, models.ModelTypeAuctionResult, models.RequestDelete, &auction.ID, nil, inputterID)
	require.NoError(t, err)

	var staged models.AuctionResultFields
	require.NoError(t, json.Unmarshal(action.Data, &staged))
	assert.Equal(t, "A-2025-07", *staged.AuctionNumber)
	assert.Nil(t, staged.AmountOffered)

	_, outcome, err := actions.Approve(ctx, action.ID, authoriserID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	_, err = f.auctions.Get(ctx, auction.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	page, err := actions.List(ctx, models.PendingStatusApproved, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestActions_DuplicateISINAcrossPipelines(t *testing.T) {
	f := newFixture(t)
	actions := newActions(f)
	ctx := context.Background()

	payload := []byte(`{"security_name":"FGN JAN 2035","isin":"NGFGN0000035","coupon":12,"coupon_type":"Fixed"}`)
	_, err := actions.Propose(ctx, models.ModelTypeSecurity, models.RequestCreate, nil, payload, inputterID)
	require.NoError(t, err)

	_, err = actions.Propose(ctx, models.ModelTypeSecurity, models.RequestCreate, nil, payload, inputterID)
	assert.True(t, models.HasCode(err, models.CodeDuplicateEntry), "second action with the same ISIN")

	_, err = f.securities.ProposeCreate(ctx, models.SecurityFields{
		SecurityName: models.Ptr("Another name"),
		ISIN:         models.Ptr("NGFGN0000035"),
	}, inputterID, authoriserID)
	assert.True(t, models.HasCode(err, models.CodeDuplicateEntry), "typed create while an action is open")

	_, err = f.securities.ProposeCreate(ctx, models.SecurityFields{
		SecurityName: models.Ptr("FGN JAN 2035"),
		ISIN:         models.Ptr("NGFGN0000036"),
	}, inputterID, authoriserID)
	assert.True(t, models.HasCode(err, models.CodeDuplicateEntry), "same name")

	_, err = f.securities.ProposeCreate(ctx, models.SecurityFields{
		SecurityName: models.Ptr("FGN FEB 2036"),
		ISIN:         models.Ptr("NGFGN0000037"),
	}, inputterID, authoriserID)
	assert.NoError(t, err)
}
