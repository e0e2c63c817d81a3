package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sahaf/dbopen"
	"github.com/hazyhaar/sahaf/tracker/internal/scrape"
)

// fakeSearcher returns canned candidates and records which searches ran.
type fakeSearcher struct {
	names          []string
	site           map[string][]scrape.Candidate
	custom         map[string][]scrape.Candidate
	discovery      []scrape.Candidate
	siteCalls      int
	customCalls    int
	discoveryCalls int

	// onSite, when set, runs inside each SearchSite call. Lets tests
	// mutate state mid-check.
	onSite func()
}

func (f *fakeSearcher) SiteNames() []string { return f.names }

func (f *fakeSearcher) KnownSite(name string) (string, bool) {
	for _, n := range f.names {
		if n == name {
			return n, true
		}
	}
	return "", false
}

func (f *fakeSearcher) SearchSite(ctx context.Context, name string, target scrape.Target) []scrape.Candidate {
	f.siteCalls++
	if f.onSite != nil {
		f.onSite()
	}
	return f.site[name]
}

func (f *fakeSearcher) SearchCustom(ctx context.Context, siteURL string, target scrape.Target) []scrape.Candidate {
	f.customCalls++
	return f.custom[siteURL]
}

func (f *fakeSearcher) SearchDiscovery(ctx context.Context, target scrape.Target) []scrape.Candidate {
	f.discoveryCalls++
	return f.discovery
}

func setupTestService(t *testing.T, fake *fakeSearcher) *Service {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if fake.names == nil {
		fake.names = []string{"nadirkitap", "kitantik"}
	}
	svc, err := New(db, nil, nil, WithSearcher(fake))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func addBook(t *testing.T, svc *Service) *Book {
	t.Helper()
	b := &Book{Title: "Tutunamayanlar", Author: "Oğuz Atay", EnableDiscovery: true}
	if err := svc.CreateBook(context.Background(), b); err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func TestCreateBook_Defaults(t *testing.T) {
	// WHAT: A book created without sites gets the built-in site list, a
	// fresh id, and active status.
	svc := setupTestService(t, &fakeSearcher{})
	b := addBook(t, svc)

	if b.ID == "" {
		t.Error("no id generated")
	}
	if len(b.Sites) != 2 || b.Sites[0].Name != "nadirkitap" {
		t.Errorf("sites = %+v", b.Sites)
	}
	if !b.IsActive {
		t.Error("book not active")
	}
	if b.TotalListings != 0 || b.LastCheckedAt != nil {
		t.Errorf("check stats not zeroed: %+v", b)
	}
}

func TestCreateBook_RequiresTitleAndAuthor(t *testing.T) {
	// WHAT: Title and author are both mandatory.
	svc := setupTestService(t, &fakeSearcher{})
	ctx := context.Background()

	if err := svc.CreateBook(ctx, &Book{Author: "X"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing title: %v", err)
	}
	if err := svc.CreateBook(ctx, &Book{Title: "X", Author: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank author: %v", err)
	}
}

func TestUpdateBook_PreservesCheckStats(t *testing.T) {
	// WHAT: A full update keeps creation time and check statistics from the
	// stored record.
	// WHY: Clients send only editable fields; stats would silently reset
	// otherwise.
	svc := setupTestService(t, &fakeSearcher{})
	ctx := context.Background()
	b := addBook(t, svc)

	when := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	if err := svc.store.UpdateCheckStats(ctx, b.ID, when, 5); err != nil {
		t.Fatal(err)
	}

	upd := &Book{ID: b.ID, Title: "Tehlikeli Oyunlar", Author: "Oğuz Atay", Sites: b.Sites, IsActive: true}
	if err := svc.UpdateBook(ctx, upd); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := svc.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Tehlikeli Oyunlar" {
		t.Errorf("title = %q", got.Title)
	}
	if got.TotalListings != 5 || got.LastCheckedAt == nil {
		t.Errorf("check stats lost: %+v", got)
	}
}

func TestGetBook_NotFound(t *testing.T) {
	// WHAT: Unknown book ids map to ErrNotFound.
	svc := setupTestService(t, &fakeSearcher{})
	if _, err := svc.GetBook(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestAddCustomSite_NormalizesScheme(t *testing.T) {
	// WHAT: A bare domain gets an https:// prefix before storage.
	svc := setupTestService(t, &fakeSearcher{})
	ctx := context.Background()
	b := addBook(t, svc)

	got, err := svc.AddCustomSite(ctx, b.ID, "sahaf.example")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(got.CustomSites) != 1 || got.CustomSites[0] != "https://sahaf.example" {
		t.Errorf("custom sites = %v", got.CustomSites)
	}
}

func TestAddCustomSite_DuplicateIsNoop(t *testing.T) {
	// WHAT: Adding the same URL twice keeps a single entry and no error.
	// WHY: Users retry form submits; a duplicate entry would double every
	// future search against that shop.
	svc := setupTestService(t, &fakeSearcher{})
	ctx := context.Background()
	b := addBook(t, svc)

	if _, err := svc.AddCustomSite(ctx, b.ID, "https://sahaf.example"); err != nil {
		t.Fatal(err)
	}
	got, err := svc.AddCustomSite(ctx, b.ID, "sahaf.example")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if len(got.CustomSites) != 1 {
		t.Errorf("custom sites = %v", got.CustomSites)
	}
}

func TestAddCustomSite_RejectsPrivateAddresses(t *testing.T) {
	// WHAT: Custom site URLs pointing at loopback or private addresses are
	// rejected as invalid input.
	// WHY: The check cycle fetches these URLs server-side; a private target
	// would turn the tracker into an SSRF proxy.
	svc := setupTestService(t, &fakeSearcher{})
	ctx := context.Background()
	b := addBook(t, svc)

	for _, raw := range []string{"http://127.0.0.1/admin", "http://192.168.1.10/api"} {
		if _, err := svc.AddCustomSite(ctx, b.ID, raw); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("AddCustomSite(%q): %v", raw, err)
		}
	}
}

func TestRemoveCustomSite_NotFound(t *testing.T) {
	// WHAT: Removing a URL that was never added reports ErrNotFound.
	svc := setupTestService(t, &fakeSearcher{})
	ctx := context.Background()
	b := addBook(t, svc)

	if _, err := svc.RemoveCustomSite(ctx, b.ID, "https://ghost.example"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestCheckBook_PersistsAndNotifies(t *testing.T) {
	// WHAT: A check persists every new listing and notifies only for scores
	// strictly above 0.5; candidates without a URL are dropped.
	fake := &fakeSearcher{
		site: map[string][]scrape.Candidate{
			"nadirkitap": {
				{SiteName: "Nadir Kitap", Title: "Tutunamayanlar", Price: "150 TL", URL: "https://n/1", Score: 0.51},
				{SiteName: "Nadir Kitap", Title: "Tutunamayanlar 2", Price: "90 TL", URL: "https://n/2", Score: 0.49},
				{SiteName: "Nadir Kitap", Title: "Kayıp URL", Price: "10 TL", URL: "", Score: 0.9},
			},
		},
	}
	svc := setupTestService(t, fake)
	ctx := context.Background()
	b := addBook(t, svc)

	res, err := svc.CheckBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.NewListings != 2 {
		t.Errorf("new listings = %d, want 2", res.NewListings)
	}
	if res.Notifications != 1 {
		t.Errorf("notifications = %d, want 1", res.Notifications)
	}

	notifs, err := svc.Notifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(notifs) != 1 || notifs[0].ListingURL != "https://n/1" {
		t.Errorf("notifications = %+v", notifs)
	}

	got, _ := svc.GetBook(ctx, b.ID)
	if got.TotalListings != 2 || got.LastCheckedAt == nil {
		t.Errorf("check stats: %+v", got)
	}
	if got.Sites[0].LastCheck == nil || got.Sites[0].ListingsFound != 2 {
		t.Errorf("site stats: %+v", got.Sites[0])
	}
}

func TestCheckBook_ConcurrentEditSurvives(t *testing.T) {
	// WHAT: A custom site added while a check is running is still on the
	// book after the check finishes, and the check stats land too.
	// WHY: A check can run minutes; finishing it must write targeted stat
	// updates, never a full replace of the snapshot loaded at check start.
	fake := &fakeSearcher{
		site: map[string][]scrape.Candidate{
			"nadirkitap": {
				{SiteName: "Nadir Kitap", Title: "Tutunamayanlar", Price: "100 TL", URL: "https://n/1", Score: 0.9},
			},
		},
	}
	svc := setupTestService(t, fake)
	ctx := context.Background()
	b := addBook(t, svc)

	fake.onSite = func() {
		if _, err := svc.AddCustomSite(ctx, b.ID, "https://sahaf.example.com"); err != nil {
			t.Errorf("add custom site mid-check: %v", err)
		}
	}
	if _, err := svc.CheckBook(ctx, b.ID); err != nil {
		t.Fatalf("check: %v", err)
	}

	got, err := svc.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.CustomSites) != 1 || got.CustomSites[0] != "https://sahaf.example.com" {
		t.Errorf("custom sites = %v, want the mid-check addition kept", got.CustomSites)
	}
	if got.LastCheckedAt == nil || got.TotalListings != 1 {
		t.Errorf("check stats: %+v", got)
	}
	if got.Sites[0].LastCheck == nil || got.Sites[0].ListingsFound != 1 {
		t.Errorf("site stats: %+v", got.Sites[0])
	}
}

func TestCheckBook_Idempotent(t *testing.T) {
	// WHAT: Re-checking with the same results from the shop finds nothing
	// new and emits no second notification.
	fake := &fakeSearcher{
		site: map[string][]scrape.Candidate{
			"nadirkitap": {
				{SiteName: "Nadir Kitap", Title: "Tutunamayanlar", Price: "150 TL", URL: "https://n/1", Score: 0.8},
			},
		},
	}
	svc := setupTestService(t, fake)
	ctx := context.Background()
	b := addBook(t, svc)

	first, err := svc.CheckBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CheckBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.NewListings != 1 || second.NewListings != 0 {
		t.Errorf("new listings: first %d, second %d", first.NewListings, second.NewListings)
	}
	if second.Notifications != 0 {
		t.Errorf("second check notified %d times", second.Notifications)
	}
}

func TestCheckBook_DedupsURLVariantsAndComposite(t *testing.T) {
	// WHAT: A stored listing also answers to its URL without the query
	// string and to its lowercased title+site composite.
	// WHY: Shops rotate tracking parameters and listing URLs; neither must
	// resurrect an already-seen listing.
	fake := &fakeSearcher{
		site: map[string][]scrape.Candidate{
			"nadirkitap": {
				{SiteName: "Nadir Kitap", Title: "Tutunamayanlar", Price: "150 TL", URL: "https://n/k?ref=1", Score: 0.8},
			},
		},
	}
	svc := setupTestService(t, fake)
	ctx := context.Background()
	b := addBook(t, svc)

	if _, err := svc.CheckBook(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	// Same listing, different tracking parameter.
	fake.site["nadirkitap"] = []scrape.Candidate{
		{SiteName: "Nadir Kitap", Title: "Farklı Başlık", Price: "150 TL", URL: "https://n/k?ref=2", Score: 0.8},
	}
	res, err := svc.CheckBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.NewListings != 0 {
		t.Errorf("query-variant URL slipped through: %d new", res.NewListings)
	}

	// Same title and site, rotated URL.
	fake.site["nadirkitap"] = []scrape.Candidate{
		{SiteName: "Nadir Kitap", Title: "TUTUNAMAYANLAR", Price: "150 TL", URL: "https://n/other", Score: 0.8},
	}
	res, err = svc.CheckBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.NewListings != 0 {
		t.Errorf("composite-key duplicate slipped through: %d new", res.NewListings)
	}
}

func TestCheckBook_UnknownSiteSkipped(t *testing.T) {
	// WHAT: A book referencing a site with no template skips it and still
	// searches the rest.
	fake := &fakeSearcher{
		site: map[string][]scrape.Candidate{
			"nadirkitap": {
				{SiteName: "Nadir Kitap", Title: "Tutunamayanlar", URL: "https://n/1", Score: 0.8},
			},
		},
	}
	svc := setupTestService(t, fake)
	ctx := context.Background()

	b := &Book{
		Title:  "Tutunamayanlar",
		Author: "Oğuz Atay",
		Sites:  []BookSite{{Name: "kapanmis-sahaf"}, {Name: "nadirkitap"}},
	}
	if err := svc.CreateBook(ctx, b); err != nil {
		t.Fatal(err)
	}

	res, err := svc.CheckBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.NewListings != 1 {
		t.Errorf("new listings = %d", res.NewListings)
	}
	if fake.siteCalls != 1 {
		t.Errorf("site searches = %d, want 1", fake.siteCalls)
	}
}

func TestCheckBook_DiscoveryGates(t *testing.T) {
	// WHAT: Discovery runs only when both the book flag and the global
	// setting allow it.
	fake := &fakeSearcher{discovery: []scrape.Candidate{
		{SiteName: "Google Sonucu", Title: "Tutunamayanlar", URL: "https://g/1", Score: 0.6},
	}}
	svc := setupTestService(t, fake)
	ctx := context.Background()
	b := addBook(t, svc)

	if _, err := svc.CheckBook(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if fake.discoveryCalls != 1 {
		t.Errorf("discovery calls = %d, want 1", fake.discoveryCalls)
	}

	// Global toggle off.
	s, _ := svc.Settings(ctx)
	s.DiscoveryEnabled = false
	if err := svc.UpdateSettings(ctx, s); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CheckBook(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if fake.discoveryCalls != 1 {
		t.Errorf("discovery ran despite global toggle: %d calls", fake.discoveryCalls)
	}
}

func TestCheckBook_CustomSitesSearched(t *testing.T) {
	// WHAT: Every custom site attached to the book is searched.
	fake := &fakeSearcher{
		custom: map[string][]scrape.Candidate{
			"https://sahaf.example": {
				{SiteName: "sahaf.example", Title: "Tutunamayanlar", URL: "https://sahaf.example/1", Score: 0.7},
			},
		},
	}
	svc := setupTestService(t, fake)
	ctx := context.Background()
	b := addBook(t, svc)

	if _, err := svc.AddCustomSite(ctx, b.ID, "https://sahaf.example"); err != nil {
		t.Fatal(err)
	}
	res, err := svc.CheckBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fake.customCalls != 1 {
		t.Errorf("custom searches = %d", fake.customCalls)
	}
	if res.NewListings != 1 {
		t.Errorf("new listings = %d", res.NewListings)
	}
}

func TestCheckBook_InFlightGuard(t *testing.T) {
	// WHAT: A second check for a book with one already running is refused.
	// WHY: Overlapping checks share the same dedup snapshot and would
	// double-insert every new listing.
	svc := setupTestService(t, &fakeSearcher{})
	ctx := context.Background()
	b := addBook(t, svc)

	if !svc.beginCheck(b.ID) {
		t.Fatal("could not claim check slot")
	}
	defer svc.endCheck(b.ID)

	if _, err := svc.CheckBook(ctx, b.ID); !errors.Is(err, ErrCheckInProgress) {
		t.Errorf("got %v", err)
	}
}

func TestCheckAllBooks_VisitsActiveOnly(t *testing.T) {
	// WHAT: The scheduled sweep checks active books and skips paused ones.
	fake := &fakeSearcher{
		site: map[string][]scrape.Candidate{
			"nadirkitap": {
				{SiteName: "Nadir Kitap", Title: "Tutunamayanlar", URL: "https://n/1", Score: 0.8},
			},
		},
	}
	svc := setupTestService(t, fake)
	ctx := context.Background()

	active := addBook(t, svc)
	paused := &Book{Title: "Tehlikeli Oyunlar", Author: "Oğuz Atay"}
	if err := svc.CreateBook(ctx, paused); err != nil {
		t.Fatal(err)
	}
	paused.IsActive = false
	if _, err := svc.store.ReplaceBook(ctx, paused); err != nil {
		t.Fatal(err)
	}

	svc.checkAllBooks(ctx)

	got, _ := svc.GetBook(ctx, active.ID)
	if got.LastCheckedAt == nil {
		t.Error("active book not checked")
	}
	gotPaused, _ := svc.GetBook(ctx, paused.ID)
	if gotPaused.LastCheckedAt != nil {
		t.Error("paused book was checked")
	}
}

func TestUpdateSettings_Validation(t *testing.T) {
	// WHAT: A check interval below one hour is rejected.
	svc := setupTestService(t, &fakeSearcher{})
	s := DefaultSettings()
	s.CheckIntervalHours = 0
	if err := svc.UpdateSettings(context.Background(), s); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("got %v", err)
	}
}

func TestMarkNotificationRead_NotFound(t *testing.T) {
	// WHAT: Marking an unknown notification reports ErrNotFound.
	svc := setupTestService(t, &fakeSearcher{})
	if err := svc.MarkNotificationRead(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestScrapeTest_Dispatch(t *testing.T) {
	// WHAT: The debug search dispatches to discovery for "google", to the
	// template search for known names, and to the generic extractor for
	// everything else.
	fake := &fakeSearcher{
		site:      map[string][]scrape.Candidate{"nadirkitap": {{URL: "https://n/1"}}},
		custom:    map[string][]scrape.Candidate{"https://x.example": {{URL: "https://x.example/1"}}},
		discovery: []scrape.Candidate{{URL: "https://g/1"}},
	}
	svc := setupTestService(t, fake)
	ctx := context.Background()

	if cands, err := svc.ScrapeTest(ctx, "google", "İnce Memed", ""); err != nil || len(cands) != 1 {
		t.Errorf("google: %v %v", cands, err)
	}
	if cands, err := svc.ScrapeTest(ctx, "nadirkitap", "İnce Memed", ""); err != nil || len(cands) != 1 {
		t.Errorf("site: %v %v", cands, err)
	}
	if cands, err := svc.ScrapeTest(ctx, "x.example", "İnce Memed", ""); err != nil || len(cands) != 1 {
		t.Errorf("custom: %v %v", cands, err)
	}
	if _, err := svc.ScrapeTest(ctx, "nadirkitap", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing title: %v", err)
	}
}
