package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/region"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/logger"
	"video_ingest_service/pkg/signer"

	"go.uber.org/zap"
)

// URLSigner signs a resource url until expiresAt
type URLSigner interface {
	Sign(resourceURL string, expiresAt time.Time) (signer.Signed, error)
}

// AccessGate decides playback and signs rendition urls
type AccessGate struct {
	repo       repository.AssetRepo
	evaluator  *region.Evaluator
	signer     URLSigner
	cdnBaseURL string
	ttl        time.Duration
	now        func() time.Time
}

// NewAccessGate create AccessGate
func NewAccessGate(repo repository.AssetRepo, evaluator *region.Evaluator, s URLSigner, cdnBaseURL string, ttl time.Duration) *AccessGate {
	return &AccessGate{
		repo:       repo,
		evaluator:  evaluator,
		signer:     s,
		cdnBaseURL: strings.TrimRight(cdnBaseURL, "/"),
		ttl:        ttl,
		now:        time.Now,
	}
}

// RequestPlaybackURL only Ready assets are ever signed
func (g *AccessGate) RequestPlaybackURL(ctx context.Context, assetID, viewerCountry string) (*domain.PlaybackGrant, error) {
	if g.signer == nil || g.cdnBaseURL == "" || g.ttl <= 0 {
		return nil, fmt.Errorf("%w: playback signing is not configured", domain.ErrConfig)
	}

	asset, err := g.repo.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			playbackDecisions.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}
	if asset.Status != domain.StatusReady || asset.RenditionLocator == "" {
		playbackDecisions.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: asset %s is not playable", domain.ErrNotFound, assetID)
	}

	d := g.evaluator.Evaluate(viewerCountry, asset.BlockedCountries)
	if !d.Allowed {
		playbackDecisions.WithLabelValues("denied").Inc()
		logger.Log.Info("playback denied by region policy",
			zap.String("asset_id", assetID), zap.String("country", d.CountryCode), zap.Bool("has_country", d.HasCountry))
		return nil, fmt.Errorf("%w: asset %s is not available in this region", domain.ErrForbidden, assetID)
	}

	resource := g.cdnBaseURL + "/" + strings.TrimLeft(asset.RenditionLocator, "/")
	signed, err := g.signer.Sign(resource, g.now().Add(g.ttl))
	if err != nil {
		return nil, fmt.Errorf("sign playback url for %s: %w", assetID, err)
	}

	playbackDecisions.WithLabelValues("granted").Inc()
	return &domain.PlaybackGrant{SignedURL: signed.URL, ExpiresAt: signed.ExpiresAt}, nil
}
