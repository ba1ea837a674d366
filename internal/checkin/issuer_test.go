package checkin

import (
	"context"
	"strings"
	"testing"

	"github.com/gatepass/server/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssue_storesCredentialAndImage(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addAttendee(42, "REG-AB12CD34", 7)
	ctx := context.Background()

	res, err := f.issuer.Issue(ctx, 42)
	require.NoError(t, err)
	assert.False(t, res.Existing)
	assert.NotEmpty(t, res.Credential.SealedPayload)
	assert.True(t, strings.HasPrefix(res.Credential.ImageKey, "credentials/REG-AB12CD34-"))

	img, attendee, err := f.issuer.Image(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "REG-AB12CD34", attendee.RegistrationCode)

	text, err := credential.ScanImage(img)
	require.NoError(t, err)
	assert.Equal(t, string(res.Credential.SealedPayload), text)
}

func TestIssue_returnsExistingCredential(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addAttendee(42, "REG-AB12CD34", 7)
	ctx := context.Background()

	first, err := f.issuer.Issue(ctx, 42)
	require.NoError(t, err)
	second, err := f.issuer.Issue(ctx, 42)
	require.NoError(t, err)

	assert.True(t, second.Existing)
	assert.Equal(t, first.Credential.ID, second.Credential.ID)
	assert.Len(t, f.images.Keys(), 1)
}

func TestIssue_unknownAttendee(t *testing.T) {
	f := newFixture(t, Policy{})
	_, err := f.issuer.Issue(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUnknownAttendee)
}

func TestIssue_generationFailureStoresPlaceholder(t *testing.T) {
	f := newFixture(t, Policy{}, credential.WithMaxVersion(2))
	f.addAttendee(42, "REG-AB12CD34", 7)
	ctx := context.Background()

	res, err := f.issuer.Issue(ctx, 42)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, credential.ErrPayloadTooLarge)
	assert.Equal(t, "credentials/placeholder-REG-AB12CD34.txt", res.PlaceholderKey)

	data, err := f.images.Get(ctx, res.PlaceholderKey)
	require.NoError(t, err)
	assert.Contains(t, string(data), "REG-AB12CD34")

	_, err = f.store.GetByAttendee(ctx, 42)
	assert.Error(t, err, "no credential is stored when generation fails")
}

func TestReissue_discardsPreviousImage(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addAttendee(42, "REG-AB12CD34", 7)
	ctx := context.Background()

	first, err := f.issuer.Issue(ctx, 42)
	require.NoError(t, err)

	second, err := f.issuer.Reissue(ctx, 42, ReissueOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Credential.ImageKey, second.Credential.ImageKey)
	assert.NotEqual(t, first.Credential.SealedPayload, second.Credential.SealedPayload)

	assert.Equal(t, []string{second.Credential.ImageKey}, f.images.Keys())

	live, err := f.store.GetByAttendee(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, second.Credential.ID, live.ID)
	assert.False(t, live.Consumed)
}

func TestReissue_rotatesCode(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addAttendee(42, "REG-AB12CD34", 7)
	ctx := context.Background()

	_, err := f.issuer.Issue(ctx, 42)
	require.NoError(t, err)
	res, err := f.issuer.Reissue(ctx, 42, ReissueOptions{RotateCode: true})
	require.NoError(t, err)

	assert.True(t, credential.ValidRegistrationCode(res.Identity.RegistrationCode))
	a := f.mustAttendee(t, 42)
	assert.Equal(t, res.Identity.RegistrationCode, a.RegistrationCode)
	assert.True(t, strings.HasPrefix(res.Credential.ImageKey, "credentials/"+a.RegistrationCode+"-"))
}

func TestReissue_withoutPriorCredential(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addAttendee(42, "REG-AB12CD34", 7)

	res, err := f.issuer.Reissue(context.Background(), 42, ReissueOptions{})
	require.NoError(t, err)
	assert.NotZero(t, res.Credential.ID)
}

func TestReissue_rotationFailureReportsPersistedCode(t *testing.T) {
	f := newFixture(t, Policy{})
	payload := f.issueExample(t)
	ctx := context.Background()

	small, err := credential.NewCodec(testSecret, credential.WithMaxVersion(2))
	require.NoError(t, err)
	f.issuer.codec = small

	res, err := f.issuer.Reissue(ctx, 42, ReissueOptions{RotateCode: true})
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, "REG-AB12CD34", res.Identity.RegistrationCode)
	assert.Equal(t, "credentials/placeholder-REG-AB12CD34.txt", res.PlaceholderKey)
	assert.Equal(t, "REG-AB12CD34", f.mustAttendee(t, 42).RegistrationCode)

	// The credential issued before the failed rotation is still live.
	v, err := f.verifier.Verify(ctx, string(payload))
	require.NoError(t, err)
	assert.Equal(t, "REG-AB12CD34", v.Identity.RegistrationCode)
}

func TestCredential_reportsConsumption(t *testing.T) {
	f := newFixture(t, Policy{})
	payload := f.issueExample(t)
	ctx := context.Background()

	cred, attendee, err := f.issuer.Credential(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), attendee.ID)
	assert.False(t, cred.Consumed)

	_, err = f.service.Scan(ctx, string(payload), 5)
	require.NoError(t, err)

	cred, _, err = f.issuer.Credential(ctx, 42)
	require.NoError(t, err)
	assert.True(t, cred.Consumed)
	assert.NotNil(t, cred.ConsumedAt)

	_, _, err = f.issuer.Credential(ctx, 404)
	assert.ErrorIs(t, err, ErrUnknownAttendee)
}
