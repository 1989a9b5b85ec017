package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
)

func TestTokenService_IssueAndVerify(t *testing.T) {
	ts, err := NewTokenService(testutil.Logger(t), "secret", "ideaforge")
	require.NoError(t, err)

	tok, err := ts.Issue("operator", time.Hour, "generate")
	require.NoError(t, err)

	ctx, err := ts.SetContextFromToken(context.Background(), tok)
	require.NoError(t, err)
	rd := ctxutil.GetRequestData(ctx)
	require.NotNil(t, rd)
	assert.Equal(t, "operator", rd.Subject)
	assert.Equal(t, []string{"generate"}, rd.Scopes)
}

func TestTokenService_Rejections(t *testing.T) {
	log := testutil.Logger(t)

	_, err := NewTokenService(log, " ", "")
	assert.Error(t, err)

	ts, err := NewTokenService(log, "secret", "ideaforge")
	require.NoError(t, err)

	_, err = ts.Issue("", time.Hour)
	assert.Error(t, err)

	_, err = ts.SetContextFromToken(context.Background(), "")
	assert.Error(t, err)

	other, err := NewTokenService(log, "other-secret", "ideaforge")
	require.NoError(t, err)
	forged, err := other.Issue("operator", time.Hour)
	require.NoError(t, err)
	_, err = ts.SetContextFromToken(context.Background(), forged)
	assert.Error(t, err)

	wrongIssuer, err := NewTokenService(log, "secret", "someone-else")
	require.NoError(t, err)
	tok, err := wrongIssuer.Issue("operator", time.Hour)
	require.NoError(t, err)
	_, err = ts.SetContextFromToken(context.Background(), tok)
	assert.Error(t, err)
}

func TestTokenService_Expiry(t *testing.T) {
	svc, err := NewTokenService(testutil.Logger(t), "secret", "")
	require.NoError(t, err)
	ts := svc.(*tokenService)

	issued := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return issued }
	tok, err := ts.Issue("operator", time.Minute)
	require.NoError(t, err)

	_, err = ts.SetContextFromToken(context.Background(), tok)
	require.NoError(t, err)

	ts.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = ts.SetContextFromToken(context.Background(), tok)
	assert.Error(t, err)

	// Tokens issued without a ttl never expire.
	ts.now = func() time.Time { return issued }
	forever, err := ts.Issue("operator", 0)
	require.NoError(t, err)
	ts.now = func() time.Time { return issued.AddDate(5, 0, 0) }
	_, err = ts.SetContextFromToken(context.Background(), forever)
	assert.NoError(t, err)
}
