package router

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"video_ingest_service/internal/api/handlers"
	"video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/region"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/logger"
	"video_ingest_service/pkg/middlewares"
	"video_ingest_service/pkg/signer"
	t_token "video_ingest_service/pkg/token"

	"github.com/cucumber/godog"
	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	edgeSecret = "edge-s3cret"
	keyPairID  = "K2JCJMDEHXQW5F"
	cdnBase    = "https://d111111abcdef8.cloudfront.net"
	playTTL    = 5 * time.Hour
)

var (
	jwtSecret  = []byte("bdd-secret")
	signingKey *rsa.PrivateKey
)

func TestFeatures(t *testing.T) {
	logger.SetNewNop()
	var err error
	signingKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Paths:    []string{"./features"},
			Format:   "pretty",
			Output:   os.Stdout,
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fail()
	}
}

type fakePresigner struct{}

func (fakePresigner) PresignPut(_ context.Context, bucket, key, _ string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://minio.local/%s/%s?X-Amz-Signature=test", bucket, key), nil
}

// playbackWorld 每個 scenario 一份
type playbackWorld struct {
	db        *gorm.DB
	repo      repository.AssetRepo
	names     map[string]string
	failOpen  bool
	now       time.Time
	status    int
	body      map[string]interface{}
	newAsset  string
	signedURL string
}

func (w *playbackWorld) open() error {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	w.db = db
	w.repo = repository.NewAssetRepo(db)
	w.failOpen = true
	w.now = time.Now()
	return w.repo.AutoMigrate()
}

func (w *playbackWorld) close() {
	if w.db == nil {
		return
	}
	if sqlDB, err := w.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (w *playbackWorld) gateway() (*fiber.App, error) {
	cfSigner, err := signer.NewCloudFrontSigner(keyPairID, signingKey)
	if err != nil {
		return nil, err
	}
	evaluator := region.NewEvaluator(region.Policy{FailOpenOnMissingGeoSignal: w.failOpen, CountryNames: w.names})
	gate := app.NewAccessGate(w.repo, evaluator, cfSigner, cdnBase, playTTL)
	intake := app.NewUploadIntake(w.repo, fakePresigner{}, "quarantine", time.Hour)

	geo, err := middlewares.EdgeGeo(middlewares.EdgeGeoConfig{
		CountryHeader: "CloudFront-Viewer-Country",
		SecretHeader:  "X-Edge-Secret",
		Secret:        edgeSecret,
	})
	if err != nil {
		return nil, err
	}

	r := fiber.New()
	RegisterRoutes(r, jwtSecret, geo, handlers.NewUploadHandler(intake), handlers.NewPlaybackHandler(gate))
	return r, nil
}

func (w *playbackWorld) do(method, target string, body string, headers map[string]string) error {
	r, err := w.gateway()
	if err != nil {
		return err
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := r.Test(req)
	if err != nil {
		return err
	}
	w.status = resp.StatusCode
	w.body = map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&w.body)
	return nil
}

func (w *playbackWorld) countryTable(name1, code1, name2, code2 string) error {
	w.names = map[string]string{name1: code1, name2: code2}
	return nil
}

func (w *playbackWorld) readyAssetBlockedIn(id, country string) error {
	return w.repo.Create(context.Background(), &domain.VideoAsset{
		ID:               id,
		OriginalFileName: id + ".mp4",
		SourceLocator:    "durable/" + domain.DurableKey(id),
		RenditionLocator: domain.RenditionManifestKey(id),
		Status:           domain.StatusReady,
		BlockedCountries: domain.CountryList{country},
	})
}

func (w *playbackWorld) assetInStatus(status, id string) error {
	return w.repo.Create(context.Background(), &domain.VideoAsset{
		ID:     id,
		Status: domain.AssetStatus(status),
	})
}

func (w *playbackWorld) failOpenDisabled() error {
	w.failOpen = false
	return nil
}

func (w *playbackWorld) viewerThroughEdge(country, id string) error {
	return w.do("POST", "/videos/"+id+"/playback", "", map[string]string{
		"CloudFront-Viewer-Country": country,
		"X-Edge-Secret":             edgeSecret,
	})
}

func (w *playbackWorld) viewerWithoutCountry(id string) error {
	return w.do("POST", "/videos/"+id+"/playback", "", map[string]string{"X-Edge-Secret": edgeSecret})
}

func (w *playbackWorld) viewerWithoutProof(country, id string) error {
	return w.do("POST", "/videos/"+id+"/playback", "", map[string]string{"CloudFront-Viewer-Country": country})
}

func (w *playbackWorld) requestUploadSlot(role, contentType, fileName string) error {
	tok, err := t_token.GenerateJWT(jwtSecret, "ops", t_token.RoleType(role), "bdd", time.Minute)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(`{"contentType":%q,"fileName":%q}`, contentType, fileName)
	return w.do("POST", "/uploads", body, map[string]string{
		fiber.HeaderAuthorization: "Bearer " + tok,
		fiber.HeaderContentType:   fiber.MIMEApplicationJSON,
	})
}

func (w *playbackWorld) statusShouldBe(code int) error {
	if w.status != code {
		return fmt.Errorf("expected status %d, got %d (%v)", code, w.status, w.body)
	}
	return nil
}

func (w *playbackWorld) signedURLShouldVerify(resourcePath string) error {
	u, _ := w.body["signedURL"].(string)
	if u == "" {
		return fmt.Errorf("no signedURL in %v", w.body)
	}
	w.signedURL = u

	v := signer.NewVerifier(map[string]*rsa.PublicKey{keyPairID: &signingKey.PublicKey}, func() time.Time { return w.now })
	resource, err := v.Verify(u)
	if err != nil {
		return err
	}
	if want := cdnBase + "/" + resourcePath; resource != want {
		return fmt.Errorf("expected resource %s, got %s", want, resource)
	}
	return nil
}

func (w *playbackWorld) signedURLRejectedAfterExpiry() error {
	later := w.now.Add(playTTL + time.Minute)
	v := signer.NewVerifier(map[string]*rsa.PublicKey{keyPairID: &signingKey.PublicKey}, func() time.Time { return later })
	if _, err := v.Verify(w.signedURL); err == nil {
		return fmt.Errorf("expired url still verifies")
	}
	return nil
}

func (w *playbackWorld) newAssetShouldBe(status string) error {
	id, _ := w.body["assetId"].(string)
	if id == "" {
		return fmt.Errorf("no assetId in %v", w.body)
	}
	a, err := w.repo.GetByID(context.Background(), id)
	if err != nil {
		return err
	}
	if string(a.Status) != status {
		return fmt.Errorf("expected %s, got %s", status, a.Status)
	}
	return nil
}

// InitializeScenario 註冊 Gherkin 與 Step Definition 的對應
func InitializeScenario(s *godog.ScenarioContext) {
	w := &playbackWorld{}

	s.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		*w = playbackWorld{}
		return ctx, w.open()
	})
	s.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		w.close()
		return ctx, nil
	})

	s.Step(`^the country table maps "([^"]*)" to "([^"]*)" and "([^"]*)" to "([^"]*)"$`, w.countryTable)
	s.Step(`^a Ready asset "([^"]*)" blocked in "([^"]*)"$`, w.readyAssetBlockedIn)
	s.Step(`^a "([^"]*)" asset "([^"]*)"$`, w.assetInStatus)
	s.Step(`^failing open is disabled$`, w.failOpenDisabled)
	s.Step(`^a viewer from "([^"]*)" requests playback of "([^"]*)" through the edge$`, w.viewerThroughEdge)
	s.Step(`^a viewer without a country requests playback of "([^"]*)"$`, w.viewerWithoutCountry)
	s.Step(`^a viewer sends country "([^"]*)" without edge proof for "([^"]*)"$`, w.viewerWithoutProof)
	s.Step(`^an "([^"]*)" requests an upload slot for "([^"]*)" named "([^"]*)"$`, w.requestUploadSlot)
	s.Step(`^the response status should be (\d+)$`, w.statusShouldBe)
	s.Step(`^the signed url should verify for "([^"]*)"$`, w.signedURLShouldVerify)
	s.Step(`^the signed url should be rejected after it expires$`, w.signedURLRejectedAfterExpiry)
	s.Step(`^the new asset should be "([^"]*)"$`, w.newAssetShouldBe)
}
