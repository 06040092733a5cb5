package onboarding_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamontai/lamontai/internal/onboarding"
)

const urlsetXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc></url>
  <url><loc>https://example.com/pricing</loc></url>
  <url><loc>https://example.com/blog/first-post</loc></url>
</urlset>`

const indexXML = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap-pages.xml</loc></sitemap>
  <sitemap><loc>https://example.com/sitemap-blog.xml</loc></sitemap>
</sitemapindex>`

func sitemapServer(t *testing.T, status int, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "LamontAI-Bot/1.0", r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSitemapURLSet(t *testing.T) {
	srv := sitemapServer(t, http.StatusOK, urlsetXML)
	urls, err := onboarding.FetchSitemap(context.Background(), srv.Client(), srv.URL, 500)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/pricing",
		"https://example.com/blog/first-post",
	}, urls)
}

func TestFetchSitemapIndex(t *testing.T) {
	srv := sitemapServer(t, http.StatusOK, indexXML)
	urls, err := onboarding.FetchSitemap(context.Background(), srv.Client(), srv.URL, 500)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
	assert.Contains(t, urls[0], "sitemap-pages.xml")
}

func TestFetchSitemapRespectsMaxURLs(t *testing.T) {
	srv := sitemapServer(t, http.StatusOK, urlsetXML)
	urls, err := onboarding.FetchSitemap(context.Background(), srv.Client(), srv.URL, 2)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestFetchSitemapErrors(t *testing.T) {
	srv := sitemapServer(t, http.StatusNotFound, "")
	_, err := onboarding.FetchSitemap(context.Background(), srv.Client(), srv.URL, 500)
	assert.Error(t, err)

	srv = sitemapServer(t, http.StatusOK, "not xml at all <<<")
	_, err = onboarding.FetchSitemap(context.Background(), srv.Client(), srv.URL, 500)
	assert.Error(t, err)

	srv = sitemapServer(t, http.StatusOK, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`)
	_, err = onboarding.FetchSitemap(context.Background(), srv.Client(), srv.URL, 500)
	assert.Error(t, err)
}
