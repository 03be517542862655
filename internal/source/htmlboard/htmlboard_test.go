package htmlboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/clock/fake"
	"github.com/tejaschuahan/job-scraper-bot/internal/fetcher"
	collyfetcher "github.com/tejaschuahan/job-scraper-bot/internal/fetcher/colly"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

const listing = `<html><body>
<ul>
  <li class="job">
    <a class="title" href="/jobs/101?ref=list">Power BI Developer</a>
    <span class="company">Umbrella</span>
    <span class="loc">Bangalore</span>
    <span class="pay">₹12,00,000 - ₹18,00,000</span>
  </li>
  <li class="job">
    <a class="title" href="https://other.example/jobs/7">Tableau Developer</a>
    <span class="company">Hooli</span>
  </li>
  <li class="job"><span class="company">No title</span></li>
</ul>
</body></html>`

func testBoard(url string) Board {
	return Board{
		ID:              "timesjobs",
		URLTemplate:     url + "/search?q={query}&l={location}",
		DefaultLocation: "India",
		Selectors: Selectors{
			Item:     "li.job",
			Title:    "a.title",
			Company:  ".company",
			Location: ".loc",
			Link:     "a.title",
			Salary:   ".pay",
		},
	}
}

func TestFetchExtractsListings(t *testing.T) {
	t.Parallel()

	gotQuery := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.RawQuery
		_, _ = w.Write([]byte(listing))
	}))
	t.Cleanup(srv.Close)

	a, err := New(testBoard(srv.URL), collyfetcher.New(collyfetcher.Config{Timeout: time.Second}), fake.New(time.Now()))
	require.NoError(t, err)
	require.Equal(t, scraper.SourceID("timesjobs"), a.ID())

	records, err := a.Fetch(context.Background(), "power bi", "Bangalore", scraper.Identity{})
	require.NoError(t, err)
	require.Equal(t, "q=power+bi&l=Bangalore", <-gotQuery)
	require.Len(t, records, 2)

	require.Equal(t, "Power BI Developer", records[0].Title)
	require.Equal(t, srv.URL+"/jobs/101?ref=list", records[0].URL)
	require.Equal(t, "Bangalore", records[0].Location)
	require.NotNil(t, records[0].Salary)
	require.InDelta(t, 1200000, records[0].Salary.Min, 0.1)

	require.Equal(t, "https://other.example/jobs/7", records[1].URL)
	require.Equal(t, "India", records[1].Location)
	require.Nil(t, records[1].Salary)
}

type stubFetcher struct {
	resp fetcher.Response
	err  error
}

func (s stubFetcher) Fetch(context.Context, fetcher.Request) (fetcher.Response, error) {
	return s.resp, s.err
}

func TestFetchPropagatesFetcherError(t *testing.T) {
	t.Parallel()

	blocked := scraper.Permanent("timesjobs", "blocked", 403, nil)
	a, err := New(testBoard("https://jobs.example"), stubFetcher{err: blocked}, fake.New(time.Now()))
	require.NoError(t, err)
	_, err = a.Fetch(context.Background(), "analyst", "", scraper.Identity{})
	require.ErrorIs(t, err, blocked)
}

func TestBoardValidate(t *testing.T) {
	t.Parallel()

	good := testBoard("https://jobs.example")
	require.NoError(t, good.Validate())

	noID := good
	noID.ID = ""
	require.Error(t, noID.Validate())

	badRender := good
	badRender.Render = "selenium"
	require.Error(t, badRender.Validate())

	noItem := good
	noItem.Selectors.Item = ""
	_, err := New(noItem, stubFetcher{}, fake.New(time.Now()))
	require.Error(t, err)
}

func TestExpand(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://b.example/jobs/data-analyst-jobs-in-new-delhi?q=data+analyst",
		expand("https://b.example/jobs/{query_path}-jobs-in-{location_path}?q={query}", "Data Analyst", "New Delhi"))
}
