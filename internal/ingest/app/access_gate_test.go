package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/region"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/logger"
	"video_ingest_service/pkg/signer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var countryNames = map[string]string{"France": "FR", "United States": "US"}

func TestRequestPlaybackURLStatuses(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	for _, status := range []domain.AssetStatus{
		domain.StatusPendingUpload, domain.StatusValidating, domain.StatusRejected,
		domain.StatusPromoting, domain.StatusTranscoding, domain.StatusTranscodeFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			repo := new(MockAssetRepo)
			repo.On("GetByID", ctx, "a1").Return(&domain.VideoAsset{ID: "a1", Status: status, RenditionLocator: "renditions/a1/index.m3u8"}, nil)
			s := new(MockURLSigner)

			gate := NewAccessGate(repo, region.NewEvaluator(region.Policy{FailOpenOnMissingGeoSignal: true}), s, "https://cdn", time.Hour)
			_, err := gate.RequestPlaybackURL(ctx, "a1", "US")
			assert.ErrorIs(t, err, domain.ErrNotFound)
			s.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything)
		})
	}

	t.Run("missing asset", func(t *testing.T) {
		repo := new(MockAssetRepo)
		repo.On("GetByID", ctx, "nope").Return(nil, domain.ErrNotFound)
		gate := NewAccessGate(repo, region.NewEvaluator(region.Policy{}), new(MockURLSigner), "https://cdn", time.Hour)
		_, err := gate.RequestPlaybackURL(ctx, "nope", "US")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("no signer", func(t *testing.T) {
		gate := NewAccessGate(new(MockAssetRepo), region.NewEvaluator(region.Policy{}), nil, "https://cdn", time.Hour)
		_, err := gate.RequestPlaybackURL(ctx, "a1", "US")
		assert.ErrorIs(t, err, config.ErrConfig)
	})
}

func TestRequestPlaybackURLSigned(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	s, err := signer.NewCloudFrontSigner("K1", key)
	require.NoError(t, err)

	repo := new(MockAssetRepo)
	repo.On("GetByID", ctx, "a1").Return(&domain.VideoAsset{
		ID: "a1", Status: domain.StatusReady, RenditionLocator: "renditions/a1/index.m3u8",
		BlockedCountries: domain.CountryList{"France"},
	}, nil)

	issued := time.Unix(1700000000, 0).UTC()
	ttl := 5 * time.Hour
	gate := NewAccessGate(repo, region.NewEvaluator(region.Policy{FailOpenOnMissingGeoSignal: true, CountryNames: countryNames}), s, "https://cdn.example.com/", ttl)
	gate.now = func() time.Time { return issued }

	grant, err := gate.RequestPlaybackURL(ctx, "a1", "US")
	require.NoError(t, err)
	assert.Equal(t, issued.Add(ttl), grant.ExpiresAt)

	verifier := signer.NewVerifier(map[string]*rsa.PublicKey{"K1": &key.PublicKey}, func() time.Time { return issued.Add(ttl - time.Second) })
	resource, err := verifier.Verify(grant.SignedURL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/renditions/a1/index.m3u8", resource)

	// 過期後驗證失敗
	expired := signer.NewVerifier(map[string]*rsa.PublicKey{"K1": &key.PublicKey}, func() time.Time { return issued.Add(ttl + time.Second) })
	_, err = expired.Verify(grant.SignedURL)
	assert.ErrorIs(t, err, signer.ErrExpired)

	_, err = gate.RequestPlaybackURL(ctx, "a1", "FR")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
