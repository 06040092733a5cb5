package onboarding_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/lamontai/lamontai/internal/onboarding"
	"github.com/lamontai/lamontai/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc></url>
  <url><loc>https://example.com/about</loc></url>
  <url><loc>https://example.com/blog/first-post</loc></url>
</urlset>`

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BusinessProfile{}, &models.Competitor{}))
	return db
}

func newService(t *testing.T, db *gorm.DB) *onboarding.Service {
	svc, err := onboarding.NewService(zap.NewNop(), db, nil)
	require.NoError(t, err)
	return svc
}

func TestProfileCreatedOnFirstAccess(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	userID := uuid.New()

	profile, err := svc.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, profile.UserID)
	assert.False(t, profile.OnboardingDone)

	again, err := svc.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, again.ID)
}

func TestFullOnboardingFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(sitemapXML))
	}))
	defer srv.Close()

	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.SaveDescription(ctx, userID, "We sell handmade chairs.")
	require.NoError(t, err)

	_, err = svc.AddCompetitor(ctx, userID, &models.CompetitorRequest{Name: "ChairCo", Domain: "chairco.example"})
	require.NoError(t, err)

	profile, urls, err := svc.SetSitemap(ctx, userID, srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Len(t, urls, 3)

	var stored []string
	require.NoError(t, json.Unmarshal([]byte(profile.SitemapLinks), &stored))
	assert.Contains(t, stored, "https://example.com/about")

	status, err := svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.False(t, status.Done)
	assert.True(t, status.Description)
	assert.True(t, status.Competitors)
	assert.True(t, status.Sitemap)
	assert.False(t, status.Audience)

	_, err = svc.SaveAudience(ctx, userID, "Interior designers.")
	require.NoError(t, err)

	status, err = svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.True(t, status.Done)
}

func TestSitemapFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	db := setupTestDB(t)
	svc := newService(t, db)

	_, _, err := svc.SetSitemap(context.Background(), uuid.New(), srv.URL+"/sitemap.xml")
	assert.Error(t, err)
}

func TestCompetitorCRUD(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	created, err := svc.AddCompetitor(ctx, userID, &models.CompetitorRequest{Name: "A", Domain: "a.example"})
	require.NoError(t, err)

	updated, err := svc.UpdateCompetitor(ctx, userID, created.ID, &models.CompetitorRequest{Name: "B", Domain: "b.example", Notes: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "B", updated.Name)

	// Another user cannot touch it
	_, err = svc.UpdateCompetitor(ctx, uuid.New(), created.ID, &models.CompetitorRequest{Name: "X", Domain: "x.example"})
	assert.ErrorIs(t, err, onboarding.ErrCompetitorNotFound)

	list, err := svc.ListCompetitors(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.DeleteCompetitor(ctx, userID, created.ID))
	err = svc.DeleteCompetitor(ctx, userID, created.ID)
	assert.ErrorIs(t, err, onboarding.ErrCompetitorNotFound)
}
