package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hihihowru/forum-autoposter-sub005/internal/fetch"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Trending</title>
  <item>
    <title>台積電 CoWoS 擴產</title>
    <link>https://forum.example.com/t/1</link>
    <guid>post-1</guid>
    <description>&lt;p&gt;法人看好先進封裝&lt;/p&gt;</description>
    <pubDate>Wed, 01 Apr 2026 08:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Old news</title>
    <link>https://forum.example.com/t/0</link>
    <guid>post-0</guid>
    <pubDate>Sun, 01 Mar 2026 08:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

const pageFixture = `<html><body>
<ul class="hot">
  <li><a href="/t/10">  聯準會 降息 </a></li>
  <li><a href="https://other.example.com/x">Nvidia earnings beat</a></li>
  <li><a href="/t/12"></a></li>
</ul>
</body></html>`

const quotesFixture = `{
  "as_of": "2026-04-01T13:30:00+08:00",
  "quotes": [
    {"symbol": "2330", "name": "台積電", "price": 1000, "change_pct": 9.8},
    {"symbol": "2303", "name": "聯電", "price": 50, "change_pct": -6.1},
    {"symbol": "2317", "name": "鴻海", "price": 200, "change_pct": 1.2}
  ]
}`

func serve(t *testing.T, body, contentType string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedSource_Discover(t *testing.T) {
	srv := serve(t, rssFixture, "application/rss+xml")
	src := NewFeedSource("hot", srv.URL, 7*24*time.Hour, fetch.New(fetch.Options{}))
	src.now = func() time.Time { return time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC) }

	got, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "feed|post-1", got[0].Key)
	assert.Equal(t, "台積電 CoWoS 擴產", got[0].Title)
	assert.Equal(t, "法人看好先進封裝", got[0].Body)
	assert.Equal(t, "https://forum.example.com/t/1", got[0].URL)
	assert.Equal(t, types.OriginTrending, got[0].Origin)
}

func TestFeedSource_BadFeed(t *testing.T) {
	srv := serve(t, "not a feed", "text/plain")
	src := NewFeedSource("hot", srv.URL, 0, fetch.New(fetch.Options{}))

	_, err := src.Discover(context.Background())
	assert.Error(t, err)
}

func TestPageSource_Discover(t *testing.T) {
	srv := serve(t, pageFixture, "text/html")
	sources, err := BuildSources([]SourceConfig{
		{Name: "board", Kind: KindPage, URL: srv.URL + "/hot", ItemSelector: "ul.hot li"},
	}, fetch.New(fetch.Options{}))
	require.NoError(t, err)

	got, err := sources[0].Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "聯準會 降息", got[0].Title)
	assert.Equal(t, srv.URL+"/t/10", got[0].URL)
	assert.Equal(t, "page|board|"+srv.URL+"/t/10", got[0].Key)
	assert.Equal(t, "https://other.example.com/x", got[1].URL)
}

func TestPriceEventSource_Discover(t *testing.T) {
	srv := serve(t, quotesFixture, "application/json")
	src := NewPriceEventSource("twse", srv.URL, 0, fetch.New(fetch.Options{}))

	got, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "price|2330|2026-04-01|limit_up", got[0].Key)
	assert.Equal(t, "台積電(2330) 漲停 +9.80%", got[0].Title)
	assert.Equal(t, types.OriginPriceEvent, got[0].Origin)
	assert.Equal(t, []string{"limit_up"}, got[0].EventTags)
	assert.Equal(t, []string{"2330"}, got[0].Instruments)

	assert.Equal(t, []string{"plunge"}, got[1].EventTags)
}

func TestPriceEventSource_RejectsInvalidPayload(t *testing.T) {
	srv := serve(t, `{"quotes": [{"symbol": "2330"}]}`, "application/json")
	src := NewPriceEventSource("twse", srv.URL, 5, fetch.New(fetch.Options{}))

	_, err := src.Discover(context.Background())
	assert.Error(t, err)
}

func TestEventForMove(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{9.5, "limit_up"},
		{10, "limit_up"},
		{6, "surge"},
		{-9.5, "limit_down"},
		{-5, "plunge"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EventForMove(tt.pct), "pct %v", tt.pct)
	}
}

func TestBuildSources_Errors(t *testing.T) {
	client := fetch.New(fetch.Options{})

	_, err := BuildSources([]SourceConfig{{Name: "x", Kind: KindPage, URL: "https://a.example"}}, client)
	assert.Error(t, err)

	_, err = BuildSources([]SourceConfig{{Name: "x", Kind: "ftp", URL: "https://a.example"}}, client)
	assert.Error(t, err)

	sources, err := BuildSources([]SourceConfig{
		{Name: "a", Kind: KindFeed, URL: "https://a.example/rss"},
		{Name: "b", Kind: KindQuotes, URL: "https://a.example/q"},
	}, client)
	require.NoError(t, err)
	assert.Equal(t, "a", sources[0].Name())
	assert.Equal(t, "b", sources[1].Name())
}
